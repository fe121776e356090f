package life

import (
	"context"
	"sync"
	"time"
)

// Store 持久化每个激活的成长数值。实现需要按上次写入后经过的时间恢复能量。
type Store interface {
	// Get 返回数值，尚无记录时返回 Initial()。
	Get(ctx context.Context, activationID string) (Stats, error)
	// Apply 原子地应用一次行为并返回新数值。
	Apply(ctx context.Context, activationID string, activity Activity) (Stats, error)
	Close() error
}

type record struct {
	stats     Stats
	updatedAt time.Time
}

// MemoryStore 是进程内实现。
type MemoryStore struct {
	mu    sync.Mutex
	stats map[string]record
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption 调整内存存储。
type MemoryOption func(*MemoryStore)

// WithClock 替换时钟。
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{stats: make(map[string]record), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, activationID string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.stats[activationID]; ok {
		return r.stats.Recover(r.updatedAt, m.now()), nil
	}
	return Initial(), nil
}

// Apply 实现 Store 接口。
func (m *MemoryStore) Apply(_ context.Context, activationID string, activity Activity) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	current := Initial()
	if r, ok := m.stats[activationID]; ok {
		current = r.stats.Recover(r.updatedAt, now)
	}
	next := current.Apply(activity)
	m.stats[activationID] = record{stats: next, updatedAt: now}
	return next, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }
