package ai

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/IMBotPlatform/DevOpsAssistant/pkg/botcore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// 支持的模型提供方。
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
)

// groqBaseURL 是 Groq 的 OpenAI 兼容接口地址。
const groqBaseURL = "https://api.groq.com/openai/v1"

// ErrCompletionTimeout 表示模型调用超过了 Config.Timeout。
var ErrCompletionTimeout = errors.New("completion provider timed out")

// Service 是 AI 逻辑的主要入口点。
// 它负责管理模型实例、会话状态以及与 LLM 的交互。
type Service struct {
	config *Config
	store  SessionStore
	logger zerolog.Logger
	tokens *tokenCounter

	mu         sync.Mutex // 保护 modelCache
	modelCache map[string]llms.Model
}

// ServiceOption 自定义 Service 行为。
type ServiceOption func(*Service)

// WithLogger 注入日志记录器。
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithLLM 为指定模型名预置模型实例，跳过按配置初始化的过程。
func WithLLM(name string, model llms.Model) ServiceOption {
	return func(s *Service) {
		s.modelCache[name] = model
	}
}

// NewService 创建一个新的 AI 服务实例。
func NewService(config *Config, store SessionStore, opts ...ServiceOption) *Service {
	s := &Service{
		config:     config,
		store:      store,
		logger:     zerolog.Nop(),
		tokens:     newTokenCounter(),
		modelCache: make(map[string]llms.Model),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveAPIKey 解析 API 密钥。
// 如果密钥以 "env:" 开头，则从环境变量中获取实际值。
func resolveAPIKey(key string) string {
	if strings.HasPrefix(key, "env:") {
		return os.Getenv(strings.TrimPrefix(key, "env:"))
	}
	return key
}

// getModel 获取模型实例。
// 如果缓存中存在则直接返回，否则初始化一个新的模型实例并缓存。
//
// 逻辑流程:
//
//	Check Cache -> (Hit) -> Return
//	  |
//	(Miss)
//	  v
//	Load Config -> (No API Key) -> Static Config-Error Model -> Update Cache -> Return
//	  |
//	  v
//	Init Provider (Groq/OpenAI/Google/Anthropic) -> Update Cache -> Return
func (s *Service) getModel(ctx context.Context, modelName string) (llms.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if model, ok := s.modelCache[modelName]; ok {
		return model, nil
	}

	cfg, ok := s.config.Model(modelName)
	if !ok {
		return nil, errors.Errorf("model '%s' not found in configuration", modelName)
	}

	apiKey := resolveAPIKey(cfg.APIKey)
	if apiKey == "" {
		// 缺少凭据不视为错误：降级为固定提示，保持 /health 可用。
		s.logger.Warn().Str("model", modelName).Str("env", cfg.APIKeyEnv).Msg("api key missing, chat will answer with a configuration error")
		llm := staticModel{text: MissingCredentialMessage(cfg.APIKeyEnv)}
		s.modelCache[modelName] = llm
		return llm, nil
	}

	var llm llms.Model
	var err error

	switch cfg.Provider {
	case ProviderGroq, ProviderOpenAI:
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == ProviderGroq {
			baseURL = groqBaseURL
		}
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(cfg.ModelName),
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		llm, err = openai.New(opts...)
	case ProviderGoogle:
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(cfg.ModelName),
		)
	case ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithToken(apiKey),
			anthropic.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		llm, err = anthropic.New(opts...)
	default:
		return nil, errors.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, errors.Wrap(err, "failed to create model provider")
	}

	s.modelCache[modelName] = llm
	return llm, nil
}

// callOptions 将模型配置转换为调用参数。
func (s *Service) callOptions(modelName string) []llms.CallOption {
	cfg, ok := s.config.Model(modelName)
	if !ok {
		return nil
	}
	opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return opts
}

// buildPrompt 组装发送给模型的消息：固定系统指令在前，随后是完整会话记录。
// 会话记录的最后一条即本次用户输入。
func (s *Service) buildPrompt(history Transcript) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+1)
	if s.config.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, s.config.SystemPrompt))
	}
	return append(messages, history.Messages()...)
}

// ChatOptions 定义调用 Chat 时的配置。
type ChatOptions struct {
	Model     string
	RequestID string
}

// ChatOption 是配置 ChatOptions 的函数。
type ChatOption func(*ChatOptions)

// WithModel 指定使用的模型。
func WithModel(model string) ChatOption {
	return func(o *ChatOptions) {
		o.Model = model
	}
}

// WithRequestID 为本次调用的日志附加请求标识。
func WithRequestID(id string) ChatOption {
	return func(o *ChatOptions) {
		o.RequestID = id
	}
}

// Chat 处理用户的消息，与 LLM 交互，并返回流式响应。
// 同一会话的多次调用按 Acquire 的顺序串行执行，保证记录中 user/assistant 交替有序。
//
// 核心架构流程图:
//
//	User Input (String)
//	      |
//	      v
//	+-------------------------+
//	| SessionStore (Memory)   |
//	| 0. Acquire Session      |
//	| 1. Save User Message    |
//	| 2. Render Full History  |
//	+-----------+-------------+
//	            |
//	            v
//	+-------------------------+
//	| LLM Provider (Groq/..)  |
//	| 3. StreamChat()         |
//	+-----------+-------------+
//	            |
//	            +-------------------------> [Output Channel] -> (Stream to User)
//	            |
//	            v
//	+-------------------------+
//	| SessionStore            |
//	| 4. Save AI Response     |
//	| 5. Release Session      |
//	+-------------------------+
func (s *Service) Chat(ctx context.Context, sessionID, prompt string, opts ...ChatOption) (<-chan botcore.StreamChunk, error) {
	// Step 0: 解析选项（默认使用配置中的 default_model，可被 WithModel 覆盖）
	options := &ChatOptions{
		Model: s.config.DefaultModel,
	}
	for _, o := range opts {
		o(options)
	}
	modelName := options.Model
	if modelName == "" {
		modelName = s.config.DefaultModel
	}
	logger := s.logger.With().
		Str("request_id", options.RequestID).
		Str("session_id", sessionID).
		Str("model", modelName).
		Logger()

	// Step 1: 获取指定的模型
	llm, err := s.getModel(ctx, modelName)
	if err != nil {
		return nil, err
	}

	// Step 2: 独占会话，随后保存用户消息
	release, err := s.store.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Append(ctx, sessionID, Turn{Role: RoleUser, Content: prompt}); err != nil {
		release()
		return nil, errors.Wrap(err, "failed to add user message")
	}

	// Step 3: 加载完整的历史对话记录（不做裁剪，超过阈值仅告警）
	history := s.store.Render(ctx, sessionID)
	messages := s.buildPrompt(history)
	if limit := s.config.HistoryWarnTokens; limit > 0 {
		if n := s.tokens.Count(messages); n > limit {
			logger.Warn().Int("prompt_tokens", n).Int("turns", len(history)).Msg("prompt exceeds history warning threshold")
		}
	}

	stream := make(chan botcore.StreamChunk)

	// Step 4: 异步调用 LLM，流式写回 token
	go func() {
		defer close(stream)
		defer release()

		callCtx, cancel := context.WithTimeout(ctx, s.config.completionTimeout())
		defer cancel()

		// send 在调用方断开时放弃发送，避免协程泄露。
		send := func(chunk botcore.StreamChunk) bool {
			select {
			case stream <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var fullResponse strings.Builder
		callOpts := append(s.callOptions(modelName), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if !send(botcore.StreamChunk{Content: string(chunk)}) {
				return ctx.Err()
			}
			fullResponse.Write(chunk) // 累计全量用于落库
			return nil
		}))

		resp, err := llm.GenerateContent(callCtx, messages, callOpts...)

		if ctx.Err() != nil {
			// 调用方已断开：丢弃不完整的回复，不写入会话。
			logger.Info().Int("partial_bytes", fullResponse.Len()).Msg("caller disconnected, partial reply dropped")
			return
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrCompletionTimeout
			}
			logger.Error().Err(err).Msg("streaming error")
			send(botcore.ErrorChunk(err))
			return
		}

		// 部分 Provider 不触发流式回调，此时从完整响应中补发。
		if fullResponse.Len() == 0 && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
			content := resp.Choices[0].Content
			if !send(botcore.StreamChunk{Content: content}) {
				return
			}
			fullResponse.WriteString(content)
		}

		// Step 5: 将完整回复保存到会话存储中
		if fullResponse.Len() > 0 {
			if err := s.store.Append(ctx, sessionID, Turn{Role: RoleAssistant, Content: fullResponse.String()}); err != nil {
				// 已经返回给用户，存储失败只记录
				logger.Error().Err(err).Msg("failed to save AI message to store")
			}
		}
		send(botcore.StreamChunk{IsFinal: true})
	}()

	return stream, nil
}

// Trigger 满足 botcore.PipelineInvoker，将标准化请求交给 Chat 处理。
// 流开始前的错误以单个错误片段的形式返回。
func (s *Service) Trigger(ctx context.Context, update botcore.Update) <-chan botcore.StreamChunk {
	stream, err := s.Chat(ctx, update.SessionID, update.Text, WithRequestID(update.ID))
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", update.ID).Str("session_id", update.SessionID).Msg("chat failed before streaming")
		out := make(chan botcore.StreamChunk, 1)
		out <- botcore.ErrorChunk(err)
		close(out)
		return out
	}
	return stream
}
