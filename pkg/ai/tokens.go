package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/tmc/langchaingo/llms"
)

// tokenCounter 估算提示词的 token 数量，仅用于观测，不参与裁剪。
// 编码表来自内嵌的离线词表，计数过程不访问网络；加载失败时 Count 退化为 0。
type tokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

var offlineLoader sync.Once

func newTokenCounter() *tokenCounter {
	return &tokenCounter{}
}

func (c *tokenCounter) load() {
	c.once.Do(func() {
		offlineLoader.Do(func() {
			tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		})
		c.enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
}

// Count 统计消息中全部文本片段的 token 数（cl100k_base）。
func (c *tokenCounter) Count(messages []llms.MessageContent) int {
	if c == nil {
		return 0
	}
	c.load()
	if c.enc == nil {
		return 0
	}
	total := 0
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				total += len(c.enc.Encode(text.Text, nil, nil))
			}
		}
	}
	return total
}
