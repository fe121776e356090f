package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind 区分审计事件的类型。
type Kind string

const (
	KindValidation      Kind = "validation"
	KindExecution       Kind = "execution"
	KindConfirmation    Kind = "confirmation"
	KindPhaseTransition Kind = "phase_transition"
	KindSafety          Kind = "safety"
)

// Event 是一条只追加的审计记录。
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Kind         Kind           `json:"kind"`
	ActivationID string         `json:"activation_id,omitempty"`
	AgentID      string         `json:"agent_id"`
	UserID       string         `json:"user_id"`
	Skill        string         `json:"skill,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	Verdict      string         `json:"verdict"`
	ReasonCode   string         `json:"reason_code,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Outcome      string         `json:"outcome,omitempty"`
	Detail       string         `json:"detail,omitempty"`
}

// Normalize 补全事件 ID 与时间戳。
func (e *Event) Normalize() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

// Sink 是审计事件的写入端。
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Filter 描述查询条件，空字段表示不过滤。
type Filter struct {
	ActivationID string
	AgentID      string
	UserID       string
	Kind         Kind
	Limit        int
}

// Reader 支持按条件读取审计事件，结果按时间倒序。
type Reader interface {
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// SinkFunc 让普通函数满足 Sink 接口。
type SinkFunc func(ctx context.Context, event Event) error

// Append 实现 Sink 接口。
func (f SinkFunc) Append(ctx context.Context, event Event) error {
	return f(ctx, event)
}
