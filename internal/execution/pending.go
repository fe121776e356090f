package execution

import (
	"context"
	"sync"
	"time"

	xerrors "Empleaido-Core/internal/errors"
)

// Status 是待确认结果的生命周期状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// Terminal 判断状态是否已终结。
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected || s == StatusExpired
}

const (
	CodeConfirmationNotFound xerrors.Code = "CONFIRMATION_NOT_FOUND"
	CodeConfirmationResolved xerrors.Code = "CONFIRMATION_RESOLVED"
	CodeConfirmationExpired  xerrors.Code = "CONFIRMATION_EXPIRED"
	CodeAgentNotReady        xerrors.Code = "AGENT_NOT_READY"
)

func init() {
	xerrors.Register(CodeConfirmationNotFound, xerrors.Attributes{Message: "confirmation not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeConfirmationResolved, xerrors.Attributes{Message: "confirmation already resolved", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeConfirmationExpired, xerrors.Attributes{Message: "confirmation expired", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeAgentNotReady, xerrors.Attributes{Message: "empleaido has not completed onboarding", Severity: xerrors.SeverityInfo})
}

var (
	ErrConfirmationNotFound = xerrors.New(CodeConfirmationNotFound, "confirmation not found")
	ErrConfirmationResolved = xerrors.New(CodeConfirmationResolved, "confirmation already resolved")
)

// Pending 是关键技能等待用户确认的执行结果。
type Pending struct {
	ID           string         `json:"id"`
	ActivationID string         `json:"activation_id,omitempty"`
	UserID       string         `json:"user_id"`
	AgentID      string         `json:"agent_id"`
	Skill        string         `json:"skill"`
	Input        map[string]any `json:"input,omitempty"`
	Output       string         `json:"output"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
}

// Expired 判断在 now 时刻是否已过期。
func (p *Pending) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// Clone 返回深拷贝。
func (p *Pending) Clone() *Pending {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Input != nil {
		cp.Input = make(map[string]any, len(p.Input))
		for k, v := range p.Input {
			cp.Input[k] = v
		}
	}
	if p.ResolvedAt != nil {
		at := *p.ResolvedAt
		cp.ResolvedAt = &at
	}
	return &cp
}

// PendingStore 持久化待确认结果。
type PendingStore interface {
	Create(ctx context.Context, p *Pending) error
	Get(ctx context.Context, id string) (*Pending, error)
	// Resolve 仅在记录仍为 pending 时写入终态，否则返回 ErrConfirmationResolved。
	Resolve(ctx context.Context, id string, status Status, at time.Time) error
}

// MemoryPendingStore 是进程内实现。
type MemoryPendingStore struct {
	mu    sync.RWMutex
	items map[string]*Pending
}

var _ PendingStore = (*MemoryPendingStore)(nil)

// NewMemoryPendingStore 创建内存存储。
func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{items: make(map[string]*Pending)}
}

// Create 实现 PendingStore 接口。
func (m *MemoryPendingStore) Create(_ context.Context, p *Pending) error {
	if p == nil || p.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "待确认记录缺少 ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.ID]; ok {
		return xerrors.New(xerrors.CodeConflict, "待确认记录已存在")
	}
	m.items[p.ID] = p.Clone()
	return nil
}

// Get 实现 PendingStore 接口。
func (m *MemoryPendingStore) Get(_ context.Context, id string) (*Pending, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.items[id]
	if !ok {
		return nil, ErrConfirmationNotFound
	}
	return p.Clone(), nil
}

// Resolve 实现 PendingStore 接口。
func (m *MemoryPendingStore) Resolve(_ context.Context, id string, status Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return ErrConfirmationNotFound
	}
	if p.Status != StatusPending {
		return ErrConfirmationResolved
	}
	p.Status = status
	p.ResolvedAt = &at
	return nil
}
