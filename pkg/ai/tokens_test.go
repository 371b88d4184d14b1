package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestTokenCounterWorksOffline(t *testing.T) {
	c := newTokenCounter()

	n := c.Count([]llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "hello world"),
		llms.TextParts(llms.ChatMessageTypeAI, "hello world"),
	})
	require.Equal(t, 4, n)
}

func TestTokenCounterNil(t *testing.T) {
	var c *tokenCounter
	require.Equal(t, 0, c.Count([]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "x")}))
}
