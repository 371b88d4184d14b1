package web

import (
	"encoding/json"
	"net/http"

	"github.com/IMBotPlatform/DevOpsAssistant/pkg/auth"
	"github.com/IMBotPlatform/DevOpsAssistant/pkg/botcore"
)

// DefaultSessionID 是请求未携带 session_id 时使用的会话。
const DefaultSessionID = "default"

// maxBodyBytes 限制 /chat 请求体大小。
const maxBodyBytes = 1 << 20

// ChatRequest 是 POST /chat 的请求体。
type ChatRequest struct {
	Message   *string `json:"message"`
	SessionID string  `json:"session_id"`
}

// RequestError 携带 HTTP 状态码与面向调用方的错误描述。
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	return e.Detail
}

// JSONAdapter 将 JSON 请求体映射为 botcore.Update。
type JSONAdapter struct{}

// Normalize 实现 botcore.Adapter。
func (JSONAdapter) Normalize(r *http.Request) (botcore.Update, error) {
	var req ChatRequest
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return botcore.Update{}, &RequestError{Status: http.StatusUnprocessableEntity, Detail: "invalid request body: " + err.Error()}
	}
	if req.Message == nil {
		return botcore.Update{}, &RequestError{Status: http.StatusUnprocessableEntity, Detail: "field required: message"}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	return botcore.Update{
		ID:        RequestIDFromContext(r.Context()),
		SessionID: sessionID,
		Text:      *req.Message,
		Token:     auth.TokenFromContext(r.Context()),
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"user_agent":  r.UserAgent(),
		},
	}, nil
}
