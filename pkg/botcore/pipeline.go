package botcore

import "context"

// StreamChunk 描述流式输出片段。
type StreamChunk struct {
	Content string
	Err     error // 流开始后发生的错误，由传输层以内联文本的形式下发
	IsFinal bool
}

// PipelineInvoker 抽象对话执行器。
// 返回的通道在输出结束（或 ctx 取消）后关闭。
type PipelineInvoker interface {
	Trigger(ctx context.Context, update Update) <-chan StreamChunk
}

// PipelineFunc 便于直接以函数充当 PipelineInvoker。
type PipelineFunc func(ctx context.Context, update Update) <-chan StreamChunk

// Trigger 实现 PipelineInvoker 接口。
func (f PipelineFunc) Trigger(ctx context.Context, update Update) <-chan StreamChunk {
	if f == nil {
		return nil
	}
	return f(ctx, update)
}

// ErrorChunk 构造携带错误的终结片段。
func ErrorChunk(err error) StreamChunk {
	return StreamChunk{Err: err, IsFinal: true}
}
