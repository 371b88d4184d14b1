package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// missingCredentialFormat 是未配置 API 密钥时返回给用户的固定提示。
const missingCredentialFormat = "⚠️ **Configuration Error**: `%s` is missing. Please add it to `.env` and restart the server."

// MissingCredentialMessage 返回指定环境变量缺失时的提示文案。
func MissingCredentialMessage(envName string) string {
	if envName == "" {
		envName = "API key"
	}
	return fmt.Sprintf(missingCredentialFormat, envName)
}

// staticModel 是一个不访问网络的 llms.Model，总是返回同一段文本。
// 用于缺少凭据时的降级：进程保持存活，/chat 以正文形式解释原因。
type staticModel struct {
	text string
}

var _ llms.Model = staticModel{}

// GenerateContent 通过流式回调（若设置）输出固定文本。
func (m staticModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil {
		if err := opts.StreamingFunc(ctx, []byte(m.text)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.text, StopReason: "stop"}},
	}, nil
}

// Call 实现 llms.Model 的旧接口。
func (m staticModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
