package web

import (
	"encoding/json"
	"net/http"

	"github.com/IMBotPlatform/DevOpsAssistant/pkg/botcore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ChatHandler 处理 POST /chat：标准化请求、触发流水线并逐片段写回。
type ChatHandler struct {
	Pipeline botcore.PipelineInvoker
	Adapter  botcore.Adapter
	Emitter  botcore.Emitter
	Logger   zerolog.Logger
}

// ServeHTTP 实现 http.Handler。
//
// 流程图：
//
//	[解析请求体] --失败--> [422 JSON]
//	     |
//	[写入 200 + text/plain] -> [触发流水线]
//	     |
//	[逐片段编码] -> [写出并 Flush] --写失败--> [结束]
//	     |
//	[通道关闭] -> [结束]
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Pipeline == nil {
		writeDetail(w, http.StatusServiceUnavailable, "chat service not initialized")
		return
	}
	adapter := h.Adapter
	if adapter == nil {
		adapter = JSONAdapter{}
	}
	emitter := h.Emitter
	if emitter == nil {
		emitter = TextEmitter{}
	}

	// 第一步：解析请求，此时尚未写出响应头，可以返回结构化错误。
	update, err := adapter.Normalize(r)
	if err != nil {
		status, detail := http.StatusUnprocessableEntity, err.Error()
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.Status > 0 {
			status = reqErr.Status
		}
		writeDetail(w, status, detail)
		return
	}
	logger := h.Logger.With().Str("request_id", update.ID).Str("session_id", update.SessionID).Logger()

	// 第二步：先行写出响应头，之后的错误只能以内联文本出现。
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	stream := h.Pipeline.Trigger(r.Context(), update)
	if stream == nil {
		return
	}

	// 第三步：转发片段；调用方断开时 r.Context() 被取消，流水线随之停止。
	written := 0
	for chunk := range stream {
		payload, err := emitter.Encode(update, chunk)
		if err != nil {
			logger.Error().Err(err).Msg("encode chunk failed")
			continue
		}
		if len(payload) == 0 {
			continue
		}
		n, err := w.Write(payload)
		written += n
		if err != nil {
			logger.Debug().Err(err).Msg("client write failed, stopping stream")
			return
		}
		_ = rc.Flush()
	}
	logger.Debug().Int("bytes", written).Msg("stream finished")
}

// writeDetail 以 {"detail": "..."} 的形式返回错误。
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// healthHandler 处理 GET /health，不需要鉴权。
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
