package ai

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrInvalidRole 表示追加的 Turn 角色既不是 user 也不是 assistant。
var ErrInvalidRole = errors.New("invalid turn role")

// StoreConfig 定义会话缓存的容量与过期策略。零值表示不启用对应策略。
type StoreConfig struct {
	IdleTTL       time.Duration `json:"idle_ttl" yaml:"idle_ttl"`             // 会话空闲超过该时长后被回收
	MaxSessions   int           `json:"max_sessions" yaml:"max_sessions"`     // 会话数量上限，超出时淘汰最久未访问的空闲会话
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"` // 空闲回收的扫描周期
}

// DefaultStoreConfig 返回默认的会话缓存策略。
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		IdleTTL:       24 * time.Hour,
		MaxSessions:   10000,
		SweepInterval: time.Minute,
	}
}

// memorySession 保存单个会话的对话记录。
type memorySession struct {
	id         string
	mu         sync.Mutex    // 保护 turns 与 lastAccess
	turns      Transcript    // 按到达顺序排列的对话轮次
	lastAccess time.Time     // 最近访问时间，用于空闲回收与 LRU 淘汰
	sem        chan struct{} // 容量为 1 的信号量，Acquire 期间被占用
}

func newMemorySession(id string, now time.Time) *memorySession {
	return &memorySession{
		id:         id,
		lastAccess: now,
		sem:        make(chan struct{}, 1),
	}
}

// busy 报告会话是否正被某次对话独占。
func (s *memorySession) busy() bool {
	return len(s.sem) > 0
}

func (s *memorySession) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

// snapshot 返回对话记录副本，调用方持有 s.mu。
func (s *memorySession) snapshot() Transcript {
	out := make(Transcript, len(s.turns))
	copy(out, s.turns)
	return out
}

// MemoryStore 是基于进程内存的 SessionStore 实现。
// 进程重启即丢失；会话数量与空闲时长受 StoreConfig 约束。
//
// 锁顺序固定为 MemoryStore.mu -> memorySession.mu，避免死锁。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	cfg      StoreConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// StoreOption 自定义 MemoryStore 行为。
type StoreOption func(*MemoryStore)

// WithStoreLogger 注入日志记录器。
func WithStoreLogger(l zerolog.Logger) StoreOption {
	return func(m *MemoryStore) {
		m.logger = l
	}
}

// NewMemoryStore 创建内存会话存储。
func NewMemoryStore(cfg StoreConfig, opts ...StoreOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*memorySession),
		cfg:      cfg,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// withSession 在会话锁内执行 fn，会话不存在时先创建。
// 返回值表示是否新建了会话。
func (m *MemoryStore) withSession(sessionID string, fn func(s *memorySession)) bool {
	now := m.now()

	// 快速路径：读锁命中既有会话。
	m.mu.RLock()
	if s, ok := m.sessions[sessionID]; ok {
		s.mu.Lock()
		s.lastAccess = now
		fn(s)
		s.mu.Unlock()
		m.mu.RUnlock()
		return false
	}
	m.mu.RUnlock()

	// 慢路径：写锁下二次检查后创建。
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
			m.evictLRULocked()
		}
		s = newMemorySession(sessionID, now)
		m.sessions[sessionID] = s
	}
	s.mu.Lock()
	s.lastAccess = now
	fn(s)
	s.mu.Unlock()
	return !ok
}

// GetOrCreate 返回会话记录副本，不存在时注册一个空会话。
func (m *MemoryStore) GetOrCreate(_ context.Context, sessionID string) (Transcript, bool) {
	var out Transcript
	created := m.withSession(sessionID, func(s *memorySession) {
		out = s.snapshot()
	})
	if created {
		m.logger.Debug().Str("session_id", sessionID).Msg("session created")
	}
	return out, created
}

// Append 在会话末尾追加一条记录。
func (m *MemoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	if turn.Role != RoleUser && turn.Role != RoleAssistant {
		return errors.Wrapf(ErrInvalidRole, "role %q", turn.Role)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = m.now()
	}
	m.withSession(sessionID, func(s *memorySession) {
		s.turns = append(s.turns, turn)
	})
	return nil
}

// Render 按时间顺序返回会话记录副本。未知会话返回空记录且不会注册。
func (m *MemoryStore) Render(_ context.Context, sessionID string) Transcript {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Transcript{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Acquire 独占指定会话，直到调用返回的 release。
//
// 流程图：
//
//	[查找/创建会话] -> [占用信号量] --ctx取消--> [返回错误]
//	       ^                |
//	       |             [会话仍在表中?] --是--> [返回 release]
//	       |                |
//	       +----否(已被回收)-+
func (m *MemoryStore) Acquire(ctx context.Context, sessionID string) (func(), error) {
	for {
		var s *memorySession
		m.withSession(sessionID, func(ss *memorySession) {
			s = ss
		})

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "acquire session %q", sessionID)
		}

		// 占用信号量之前会话可能已被回收，此时重新获取。
		m.mu.RLock()
		current := m.sessions[sessionID]
		m.mu.RUnlock()
		if current == s {
			var once sync.Once
			return func() {
				once.Do(func() {
					s.touch(m.now())
					<-s.sem
				})
			}, nil
		}
		<-s.sem
	}
}

// Len 返回当前存活的会话数量。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle 回收空闲超过 IdleTTL 的会话，返回回收数量。正在使用的会话不会被回收。
func (m *MemoryStore) EvictIdle(now time.Time) int {
	ttl := m.cfg.IdleTTL
	if ttl <= 0 {
		return 0
	}
	if now.IsZero() {
		now = m.now()
	}

	m.mu.Lock()
	evicted := 0
	for id, s := range m.sessions {
		if s.busy() {
			continue
		}
		s.mu.Lock()
		expired := now.Sub(s.lastAccess) >= ttl
		s.mu.Unlock()
		if !expired {
			continue
		}
		delete(m.sessions, id)
		evicted++
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if evicted > 0 {
		m.logger.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("idle sessions evicted")
	}
	return evicted
}

// evictLRULocked 淘汰最久未访问的空闲会话，调用方持有 m.mu 写锁。
func (m *MemoryStore) evictLRULocked() {
	var (
		victim string
		oldest time.Time
	)
	for id, s := range m.sessions {
		if s.busy() {
			continue
		}
		s.mu.Lock()
		last := s.lastAccess
		s.mu.Unlock()
		if victim == "" || last.Before(oldest) {
			victim = id
			oldest = last
		}
	}
	if victim == "" {
		m.logger.Warn().Int("max_sessions", m.cfg.MaxSessions).Msg("session capacity reached but every session is busy")
		return
	}
	delete(m.sessions, victim)
	m.logger.Debug().Str("session_id", victim).Msg("least recently used session evicted")
}

// Run 周期性回收空闲会话，直到 ctx 结束。未配置回收策略时仅等待 ctx。
func (m *MemoryStore) Run(ctx context.Context) error {
	interval := m.cfg.SweepInterval
	if interval <= 0 || m.cfg.IdleTTL <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.EvictIdle(m.now())
		}
	}
}
