package web

import "github.com/IMBotPlatform/DevOpsAssistant/pkg/botcore"

// TextEmitter 将片段编码为纯文本。
// 流开始后无法再改变 HTTP 状态码，错误以 "Error: <message>" 内联写出。
type TextEmitter struct{}

// Encode 实现 botcore.Emitter。
func (TextEmitter) Encode(_ botcore.Update, chunk botcore.StreamChunk) ([]byte, error) {
	if chunk.Err != nil {
		return []byte("Error: " + chunk.Err.Error()), nil
	}
	if chunk.Content == "" {
		return nil, nil
	}
	return []byte(chunk.Content), nil
}
