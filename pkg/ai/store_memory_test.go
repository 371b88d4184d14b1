package ai

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock 提供可手动推进的时间源。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(cfg StoreConfig, clock *fakeClock) *MemoryStore {
	m := NewMemoryStore(cfg)
	if clock != nil {
		m.now = clock.Now
	}
	return m
}

func TestMemoryStoreGetOrCreateNewSessionIsEmpty(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()

	transcript, created := m.GetOrCreate(ctx, "a")
	require.True(t, created)
	require.Empty(t, transcript)

	_, created = m.GetOrCreate(ctx, "a")
	require.False(t, created)
	require.Equal(t, 1, m.Len())
}

func TestMemoryStoreAppendKeepsOrder(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		require.NoError(t, m.Append(ctx, "s", Turn{Role: role, Content: fmt.Sprintf("m%d", i)}))
	}

	got := m.Render(ctx, "s")
	require.Len(t, got, 10)
	for i, turn := range got {
		require.Equal(t, fmt.Sprintf("m%d", i), turn.Content)
		require.False(t, turn.CreatedAt.IsZero())
	}
}

func TestMemoryStoreAppendCreatesUnknownSession(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "fresh", Turn{Role: RoleUser, Content: "hi"}))
	require.Equal(t, 1, m.Len())
	require.Equal(t, "hi", m.Render(ctx, "fresh")[0].Content)
}

func TestMemoryStoreAppendRejectsUnknownRole(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)

	err := m.Append(context.Background(), "s", Turn{Role: "system", Content: "x"})
	require.ErrorIs(t, err, ErrInvalidRole)
	require.Equal(t, 0, m.Len())
}

func TestMemoryStoreSessionsAreIndependent(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "a", Turn{Role: RoleUser, Content: "from a"}))
	require.NoError(t, m.Append(ctx, "b", Turn{Role: RoleUser, Content: "from b"}))

	a := m.Render(ctx, "a")
	b := m.Render(ctx, "b")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Equal(t, "from a", a[0].Content)
	require.Equal(t, "from b", b[0].Content)
}

func TestMemoryStoreRenderUnknownDoesNotRegister(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)

	require.Empty(t, m.Render(context.Background(), "ghost"))
	require.Equal(t, 0, m.Len())
}

func TestMemoryStoreRenderReturnsCopy(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s", Turn{Role: RoleUser, Content: "original"}))

	got := m.Render(ctx, "s")
	got[0].Content = "mutated"

	require.Equal(t, "original", m.Render(ctx, "s")[0].Content)
}

func TestMemoryStoreRenderIsPrefixOfLaterRender(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s", Turn{Role: RoleUser, Content: "one"}))
	before := m.Render(ctx, "s")

	require.NoError(t, m.Append(ctx, "s", Turn{Role: RoleAssistant, Content: "two"}))
	after := m.Render(ctx, "s")

	require.Len(t, after, len(before)+1)
	require.Equal(t, before, after[:len(before)])
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = m.Append(ctx, "shared", Turn{Role: RoleUser, Content: fmt.Sprintf("%d-%d", w, i)})
				_ = m.Append(ctx, fmt.Sprintf("own-%d", w), Turn{Role: RoleUser, Content: "x"})
			}
		}(w)
	}
	wg.Wait()

	require.Len(t, m.Render(ctx, "shared"), workers*perWorker)
	require.Equal(t, workers+1, m.Len())
}

func TestMemoryStoreEvictIdle(t *testing.T) {
	clock := newFakeClock()
	m := newTestStore(StoreConfig{IdleTTL: time.Hour}, clock)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "old", Turn{Role: RoleUser, Content: "x"}))
	clock.Advance(50 * time.Minute)
	require.NoError(t, m.Append(ctx, "recent", Turn{Role: RoleUser, Content: "y"}))
	clock.Advance(20 * time.Minute)

	require.Equal(t, 1, m.EvictIdle(clock.Now()))
	require.Empty(t, m.Render(ctx, "old"))
	require.Len(t, m.Render(ctx, "recent"), 1)
}

func TestMemoryStoreEvictIdleSkipsBusySessions(t *testing.T) {
	clock := newFakeClock()
	m := newTestStore(StoreConfig{IdleTTL: time.Minute}, clock)
	ctx := context.Background()

	release, err := m.Acquire(ctx, "busy")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	require.Equal(t, 0, m.EvictIdle(clock.Now()))
	require.Equal(t, 1, m.Len())

	release()
	clock.Advance(time.Hour)
	require.Equal(t, 1, m.EvictIdle(clock.Now()))
	require.Equal(t, 0, m.Len())
}

func TestMemoryStoreEvictIdleDisabled(t *testing.T) {
	clock := newFakeClock()
	m := newTestStore(StoreConfig{}, clock)
	require.NoError(t, m.Append(context.Background(), "s", Turn{Role: RoleUser, Content: "x"}))

	clock.Advance(1000 * time.Hour)
	require.Equal(t, 0, m.EvictIdle(clock.Now()))
}

func TestMemoryStoreEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	clock := newFakeClock()
	m := newTestStore(StoreConfig{MaxSessions: 2}, clock)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "a", Turn{Role: RoleUser, Content: "a"}))
	clock.Advance(time.Second)
	require.NoError(t, m.Append(ctx, "b", Turn{Role: RoleUser, Content: "b"}))
	clock.Advance(time.Second)
	// 访问 a，使 b 成为最久未访问的会话。
	require.NoError(t, m.Append(ctx, "a", Turn{Role: RoleAssistant, Content: "a2"}))
	clock.Advance(time.Second)

	require.NoError(t, m.Append(ctx, "c", Turn{Role: RoleUser, Content: "c"}))

	require.Equal(t, 2, m.Len())
	require.Len(t, m.Render(ctx, "a"), 2)
	require.Empty(t, m.Render(ctx, "b"))
	require.Len(t, m.Render(ctx, "c"), 1)
}

func TestMemoryStoreCapacityNeverEvictsBusySession(t *testing.T) {
	clock := newFakeClock()
	m := newTestStore(StoreConfig{MaxSessions: 1}, clock)
	ctx := context.Background()

	release, err := m.Acquire(ctx, "busy")
	require.NoError(t, err)
	defer release()
	clock.Advance(time.Second)

	require.NoError(t, m.Append(ctx, "other", Turn{Role: RoleUser, Content: "x"}))
	require.Equal(t, 2, m.Len())
}

func TestMemoryStoreAcquireSerializesSession(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()

	release, err := m.Acquire(ctx, "s")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := m.Acquire(ctx, "s")
		if err == nil {
			r()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while the session was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release() // 重复调用无副作用
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not proceed after release")
	}
}

func TestMemoryStoreAcquireHonorsContext(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)

	release, err := m.Acquire(context.Background(), "s")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "s")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryStoreAcquireDifferentSessionsDoNotBlock(t *testing.T) {
	m := newTestStore(StoreConfig{}, nil)
	ctx := context.Background()

	ra, err := m.Acquire(ctx, "a")
	require.NoError(t, err)
	defer ra()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	rb, err := m.Acquire(ctx, "b")
	require.NoError(t, err)
	rb()
}

func TestMemoryStoreRunSweepsUntilCancelled(t *testing.T) {
	clock := newFakeClock()
	m := newTestStore(StoreConfig{IdleTTL: time.Minute, SweepInterval: 5 * time.Millisecond}, clock)
	require.NoError(t, m.Append(context.Background(), "s", Turn{Role: RoleUser, Content: "x"}))
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
