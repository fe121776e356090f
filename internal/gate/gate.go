package gate

import (
	"context"
	"fmt"
	"log/slog"

	"Empleaido-Core/internal/audit"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/skill"
	"Empleaido-Core/pkg/logger"
)

// Outcome 是准入判定的三种结果之一。
type Outcome string

const (
	// OutcomeAllow 表示可以直接执行。
	OutcomeAllow Outcome = "allow"
	// OutcomeConfirm 表示可以执行，但结果在用户确认前不得保存或使用。
	OutcomeConfirm Outcome = "confirm"
	// OutcomeDeny 表示拒绝执行。
	OutcomeDeny Outcome = "deny"
)

// ReasonCode 对拒绝原因做可枚举的分类。
type ReasonCode string

const (
	ReasonNone                 ReasonCode = ""
	ReasonUnknownAgent         ReasonCode = "unknown_agent"
	ReasonSkillNotFound        ReasonCode = "skill_not_found"
	ReasonRequiresUnlock       ReasonCode = "requires_unlock"
	ReasonInvalidInput         ReasonCode = "invalid_input"
	ReasonRequiresConfirmation ReasonCode = "requires_confirmation"
)

// CodeInvalidInput 表示技能输入不满足约束。
const CodeInvalidInput xerrors.Code = "INVALID_INPUT"

func init() {
	xerrors.Register(CodeInvalidInput, xerrors.Attributes{Message: "invalid skill input", Severity: xerrors.SeverityInfo})
}

// ErrorCode 把拒绝原因映射为统一错误码。
func (r ReasonCode) ErrorCode() xerrors.Code {
	switch r {
	case ReasonUnknownAgent:
		return skill.CodeUnknownAgent
	case ReasonSkillNotFound:
		return skill.CodeSkillNotFound
	case ReasonRequiresUnlock:
		return skill.CodeSkillLocked
	case ReasonInvalidInput:
		return CodeInvalidInput
	}
	return ""
}

// Request 是一次技能调用请求。
type Request struct {
	AgentID      string         `json:"agent_id"`
	Skill        string         `json:"skill"`
	Input        map[string]any `json:"input"`
	UserID       string         `json:"user_id"`
	ActivationID string         `json:"activation_id,omitempty"`
}

// Verdict 是准入判定的唯一权威结果，不存在部分允许。
type Verdict struct {
	Allowed           bool       `json:"allowed"`
	Outcome           Outcome    `json:"outcome"`
	ReasonCode        ReasonCode `json:"reason_code,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	AlternativeSkills []string   `json:"alternative_skills,omitempty"`
	// Field 是输入校验失败时第一个出错的字段。
	Field string `json:"field,omitempty"`
}

// RequiresConfirmation 判断结果是否需要用户确认。
func (v Verdict) RequiresConfirmation() bool {
	return v.Outcome == OutcomeConfirm
}

// Err 将拒绝判定转换为统一错误，允许的判定返回 nil。
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	opts := []xerrors.Option{xerrors.WithMetadata("reason_code", string(v.ReasonCode))}
	if v.Field != "" {
		opts = append(opts, xerrors.WithMetadata("field", v.Field))
	}
	return xerrors.New(v.ReasonCode.ErrorCode(), v.Reason, opts...)
}

func deny(code ReasonCode, reason string, alternatives []string) Verdict {
	return Verdict{Outcome: OutcomeDeny, ReasonCode: code, Reason: reason, AlternativeSkills: alternatives}
}

// Validate 按固定顺序检查请求，第一个失败的检查决定结果。
// 它只依赖 registry 与 req，相同输入总是得到相同结果。
func Validate(registry *skill.Registry, req Request) Verdict {
	catalog, ok := registry.Lookup(req.AgentID)
	if !ok {
		return deny(ReasonUnknownAgent, fmt.Sprintf("Empleaido %s not found", req.AgentID), nil)
	}

	def, ok := catalog.Skill(req.Skill)
	if !ok {
		return deny(ReasonSkillNotFound,
			fmt.Sprintf("Skill %q not found in %s's registry", req.Skill, catalog.Profile.AgentID),
			catalog.Names())
	}

	if def.Locked() {
		return deny(ReasonRequiresUnlock,
			fmt.Sprintf("Skill %q requires upgrade to unlock", req.Skill),
			catalog.NativeNames())
	}

	if field, problem := checkInput(req.Input, def.InputSchema); problem != "" {
		v := deny(ReasonInvalidInput, "Invalid input: "+problem, nil)
		v.Field = field
		return v
	}

	if def.Critical {
		return Verdict{
			Allowed:    true,
			Outcome:    OutcomeConfirm,
			ReasonCode: ReasonRequiresConfirmation,
			Reason:     "CRITICAL: Requires user confirmation before saving result",
		}
	}
	return Verdict{Allowed: true, Outcome: OutcomeAllow}
}

// Observer 在每次判定后被调用，用于指标统计。
type Observer func(req Request, verdict Verdict)

// Gate 把 Validate 与审计记录组合在一起，是所有执行路径的唯一入口。
type Gate struct {
	registry *skill.Registry
	sink     audit.Sink
	observer Observer
}

// Option 定义 Gate 的可选配置。
type Option func(*Gate)

// WithObserver 注册判定观察者。
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

// New 创建 Gate。
func New(registry *skill.Registry, sink audit.Sink, opts ...Option) *Gate {
	g := &Gate{registry: registry, sink: sink}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Registry 返回 Gate 使用的技能目录。
func (g *Gate) Registry() *skill.Registry {
	return g.registry
}

// Check 做出判定并写入审计。审计写入失败时返回错误，调用方不得继续执行。
func (g *Gate) Check(ctx context.Context, req Request) (Verdict, error) {
	if g == nil || g.registry == nil {
		return Verdict{}, xerrors.New(xerrors.CodeInitializationFailure, "技能准入未初始化")
	}
	verdict := Validate(g.registry, req)
	if g.observer != nil {
		g.observer(req, verdict)
	}

	if g.sink != nil {
		err := g.sink.Append(ctx, audit.Event{
			Kind:         audit.KindValidation,
			ActivationID: req.ActivationID,
			AgentID:      req.AgentID,
			UserID:       req.UserID,
			Skill:        req.Skill,
			Input:        req.Input,
			Verdict:      string(verdict.Outcome),
			ReasonCode:   string(verdict.ReasonCode),
			Reason:       verdict.Reason,
		})
		if err != nil {
			logger.Named("gate").Error("审计记录失败，拒绝继续执行",
				slog.String("agent_id", req.AgentID),
				slog.String("skill", req.Skill),
				slog.Any("error", err))
			return verdict, err
		}
	}
	return verdict, nil
}
