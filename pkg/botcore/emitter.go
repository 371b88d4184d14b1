package botcore

// Emitter 将流水线产生的流式片段转换为传输层可直接写出的字节。
// 返回 nil 表示该片段无需下发。
type Emitter interface {
	Encode(update Update, chunk StreamChunk) ([]byte, error)
}

// EmitterFunc 允许直接用函数实现。
type EmitterFunc func(update Update, chunk StreamChunk) ([]byte, error)

// Encode 实现 Emitter 接口。
func (f EmitterFunc) Encode(update Update, chunk StreamChunk) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return f(update, chunk)
}
