package botcore

import "net/http"

// Adapter 将传输层原始请求映射为标准 Update。
type Adapter interface {
	Normalize(r *http.Request) (Update, error)
}

// AdapterFunc 允许直接以函数形式实现 Adapter。
type AdapterFunc func(r *http.Request) (Update, error)

// Normalize 实现 Adapter 接口。
func (f AdapterFunc) Normalize(r *http.Request) (Update, error) {
	if f == nil {
		return Update{}, nil
	}
	return f(r)
}
