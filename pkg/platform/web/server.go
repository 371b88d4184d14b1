package web

import (
	"context"
	"net/http"
	"time"

	"github.com/IMBotPlatform/DevOpsAssistant/pkg/auth"
	"github.com/IMBotPlatform/DevOpsAssistant/pkg/botcore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config 定义 HTTP 监听参数。
type Config struct {
	ListenAddr        string        `json:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins    []string      `json:"allowed_origins" yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Server 集成路由、鉴权网关与对话流水线。
// Fields:
//   - cfg: 监听与超时配置
//   - handler: 组装完成的根 Handler（CORS -> RequestID -> Mux）
//   - logger: 日志记录器
type Server struct {
	cfg     Config
	handler http.Handler
	logger  zerolog.Logger
}

// Option 用于定制 Server 行为。
type Option func(*Server)

// WithLogger 注入日志记录器。
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer 根据给定参数创建 Server。
// Parameters:
//   - cfg: 监听配置
//   - gate: 鉴权网关，保护 /chat
//   - pipeline: 对话流水线实现
func NewServer(cfg Config, gate *auth.Gate, pipeline botcore.PipelineInvoker, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	chat := &ChatHandler{
		Pipeline: pipeline,
		Adapter:  JSONAdapter{},
		Emitter:  TextEmitter{},
		Logger:   s.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("POST /chat", gate.Middleware(chat))

	s.handler = newCORS(cfg.AllowedOrigins).Handler(s.withRequestID(mux))
	return s
}

// Handler 返回根 Handler，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	return s.handler
}

// newCORS 构造跨域策略；"*" 表示放行任意来源（包括携带凭据的请求）。
func newCORS(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
	for _, o := range origins {
		if o == "*" {
			opts.AllowOriginFunc = func(string) bool { return true }
			return cors.New(opts)
		}
	}
	opts.AllowedOrigins = origins
	return cors.New(opts)
}

type keyRequestID struct{}

// RequestIDFromContext 返回当前请求的标识。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(keyRequestID{}).(string)
	return id
}

// withRequestID 为每个请求分配 X-Request-ID（沿用调用方提供的值）并记录访问日志。
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyRequestID{}, id)))
		s.logger.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// Run 启动 HTTP 服务，ctx 结束后在 ShutdownTimeout 内优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server listen error")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server shutdown error")
		}
		s.logger.Info().Msg("server shutdown complete")
		return nil
	})
	return eg.Wait()
}
