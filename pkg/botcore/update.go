package botcore

// Update 描述一次经过标准化的对话请求。
type Update struct {
	ID        string            // 请求唯一标识（用于日志串联）
	SessionID string            // 会话 ID，由调用方自行指定
	Text      string            // 用户输入的消息文本
	Token     string            // 原始 Bearer Token，原样透传给下游
	Metadata  map[string]string // 扩展键值，如 remote_addr、user_agent 等
}

// CloneMetadata 返回一份 Metadata 拷贝，防止 Handler 意外修改底层数据。
func (u Update) CloneMetadata() map[string]string {
	if len(u.Metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(u.Metadata))
	for k, v := range u.Metadata {
		out[k] = v
	}
	return out
}
