package ai

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Role identifies the author of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the ordered sequence of turns of one session.
type Transcript []Turn

// Messages converts the transcript into langchaingo message parts, oldest first.
func (t Transcript) Messages() []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(t))
	for _, turn := range t {
		msgType := llms.ChatMessageTypeHuman
		if turn.Role == RoleAssistant {
			msgType = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(msgType, turn.Content))
	}
	return out
}

// SessionStore manages the conversation transcripts keyed by session id.
type SessionStore interface {
	// GetOrCreate returns a copy of the session's transcript, registering an
	// empty one if the id is unknown. The bool reports whether it was created.
	GetOrCreate(ctx context.Context, sessionID string) (Transcript, bool)

	// Append adds a turn at the end of the session's transcript, creating
	// the session if needed.
	Append(ctx context.Context, sessionID string, turn Turn) error

	// Render returns the transcript in chronological order for prompt construction.
	Render(ctx context.Context, sessionID string) Transcript

	// Acquire grants exclusive use of a session until release is called.
	// It blocks until the session is free or ctx is done.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)

	// Len reports the number of live sessions.
	Len() int
}
