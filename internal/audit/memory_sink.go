package audit

import (
	"context"
	"sync"
)

// MemorySink 在内存中保存审计事件，用于测试与未配置数据库的部署。
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink 创建 MemorySink。
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append 实现 Sink 接口。
func (m *MemorySink) Append(_ context.Context, event Event) error {
	event.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// List 实现 Reader 接口。
func (m *MemorySink) List(_ context.Context, filter Filter) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, 0)
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if !filter.matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Events 以写入顺序返回全部事件。
func (m *MemorySink) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events...)
}

func (f Filter) matches(e Event) bool {
	if f.ActivationID != "" && e.ActivationID != f.ActivationID {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}

var (
	_ Sink   = (*MemorySink)(nil)
	_ Reader = (*MemorySink)(nil)
)
