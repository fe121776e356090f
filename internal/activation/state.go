package activation

import (
	"time"

	"github.com/google/uuid"

	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/preference"
)

// Phase 表示激活流程所处的阶段。
type Phase string

const (
	PhaseSpawn            Phase = "spawn"
	PhaseAwakening        Phase = "awakening"
	PhaseTraitDisclosure  Phase = "trait_disclosure"
	PhaseContextLearning  Phase = "context_learning"
	PhaseScopeCalibration Phase = "scope_calibration"
	PhaseComplete         Phase = "complete"
	PhaseOperational      Phase = "operational"
)

var sequence = []Phase{
	PhaseSpawn,
	PhaseAwakening,
	PhaseTraitDisclosure,
	PhaseContextLearning,
	PhaseScopeCalibration,
	PhaseComplete,
	PhaseOperational,
}

// Index 返回阶段在固定序列中的位置，未知阶段返回 -1。
func (p Phase) Index() int {
	for i, s := range sequence {
		if s == p {
			return i
		}
	}
	return -1
}

// Valid 判断是否为已知阶段。
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Next 返回下一个阶段。operational 是终态，返回自身。
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i == len(sequence)-1 {
		return p
	}
	return sequence[i+1]
}

// Terminal 判断是否为终态。
func (p Phase) Terminal() bool {
	return p == PhaseOperational
}

// Phases 返回完整的阶段序列。
func Phases() []Phase {
	return append([]Phase(nil), sequence...)
}

// State 是单个激活的聚合根。
type State struct {
	ActivationID     string                 `json:"activation_id"`
	UserID           string                 `json:"user_id"`
	AgentID          string                 `json:"agent_id"`
	CurrentPhase     Phase                  `json:"current_phase"`
	MessagesInPhase  int                    `json:"messages_in_phase"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	Preferences      preference.Preferences `json:"preferences"`
	BootstrapCleared bool                   `json:"bootstrap_cleared"`
	Version          int64                  `json:"version"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// New 构造一个处于 awakening 阶段的新激活。agentID 应当是已解析的稳定标识。
func New(userID, agentID string, now time.Time) *State {
	now = now.UTC()
	return &State{
		ActivationID:    uuid.NewString(),
		UserID:          userID,
		AgentID:         agentID,
		CurrentPhase:    PhaseAwakening,
		MessagesInPhase: 0,
		StartedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}
}

// Clone 返回深拷贝。
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	out.Preferences = s.Preferences.Clone()
	return &out
}

// Operational 判断激活是否已进入终态。
func (s *State) Operational() bool {
	return s != nil && s.CurrentPhase.Terminal()
}

const (
	CodeActivationNotFound xerrors.Code = "ACTIVATION_NOT_FOUND"
	CodeActivationConflict xerrors.Code = "ACTIVATION_CONFLICT"
	CodeActivationExists   xerrors.Code = "ACTIVATION_EXISTS"
)

var (
	// ErrNotFound 表示激活记录不存在。
	ErrNotFound = xerrors.New(CodeActivationNotFound, "activation not found")
	// ErrConflict 表示保存时版本号已过期。
	ErrConflict = xerrors.New(CodeActivationConflict, "activation version conflict")
	// ErrExists 表示同一用户与智能体类型已存在激活。
	ErrExists = xerrors.New(CodeActivationExists, "activation already exists")
)

func init() {
	xerrors.Register(CodeActivationNotFound, xerrors.Attributes{Message: "activation not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeActivationConflict, xerrors.Attributes{Message: "activation version conflict", Severity: xerrors.SeverityWarning, Retryable: true})
	xerrors.Register(CodeActivationExists, xerrors.Attributes{Message: "activation already exists", Severity: xerrors.SeverityInfo})
}
