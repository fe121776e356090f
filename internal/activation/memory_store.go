package activation

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "Empleaido-Core/internal/errors"
)

// MemoryStore 以内存方式保存激活状态，主要用于测试和单机运行。
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
	byPair map[string]string
	now    func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*State),
		byPair: make(map[string]string),
		now:    time.Now,
	}
}

func pairKey(userID, agentID string) string {
	return userID + "\x00" + agentID
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, userID, agentID string) (*State, error) {
	userID = strings.TrimSpace(userID)
	agentID = strings.TrimSpace(agentID)
	if userID == "" || agentID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "user_id 与 agent_id 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPair[pairKey(userID, agentID)]; ok {
		return nil, ErrExists
	}
	state := New(userID, agentID, m.now())
	m.states[state.ActivationID] = state.Clone()
	m.byPair[pairKey(userID, agentID)] = state.ActivationID
	return state, nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

// FindByUserAgent 实现 Store 接口。
func (m *MemoryStore) FindByUserAgent(_ context.Context, userID, agentID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPair[pairKey(strings.TrimSpace(userID), strings.TrimSpace(agentID))]
	if !ok {
		return nil, ErrNotFound
	}
	return m.states[id].Clone(), nil
}

// Save 实现 Store 接口，按版本号做乐观并发控制。
func (m *MemoryStore) Save(_ context.Context, state *State) error {
	if state == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "state 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.states[state.ActivationID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != state.Version {
		return ErrConflict
	}
	state.Version++
	state.UpdatedAt = m.now().UTC()
	m.states[state.ActivationID] = state.Clone()
	return nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
