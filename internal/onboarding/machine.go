package onboarding

import (
	"context"
	"fmt"
	"time"

	"Empleaido-Core/internal/activation"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/preference"
	"Empleaido-Core/internal/skill"
)

// 各阶段的消息数阈值。
const (
	traitDisclosureThreshold  = 2
	contextLearningThreshold  = 3
	scopeCalibrationThreshold = 2
)

// EffectKind 描述需要由调用方执行的一次性副作用。
type EffectKind string

const (
	// EffectMarkCompleted 表示激活已完成，CompletedAt 已写入状态。
	EffectMarkCompleted EffectKind = "mark_completed"
	// EffectClearBootstrap 表示需要删除工作区中的引导标记。
	EffectClearBootstrap EffectKind = "clear_bootstrap"
)

// Effect 是一次副作用描述。
type Effect struct {
	Kind EffectKind
}

// Result 是一次 Advance 的输出。State 是修改后的副本，输入状态不会被修改。
type Result struct {
	Reply              string
	State              *activation.State
	From               activation.Phase
	To                 activation.Phase
	Transitioned       bool
	ShouldUpdateUser   bool
	PreferencesUpdated bool
	// Deferred 为 true 表示激活已进入 operational，由调用方做意图路由。
	Deferred bool
	Effects  []Effect
}

// HasEffect 判断结果是否包含指定副作用。
func (r Result) HasEffect(kind EffectKind) bool {
	for _, e := range r.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Machine 是激活阶段状态机。它不读写存储，也从不隐式创建状态。
type Machine struct {
	registry  *skill.Registry
	extractor preference.Extractor
	now       func() time.Time
}

// MachineOption 定义 Machine 的可选配置。
type MachineOption func(*Machine)

// WithClock 替换时钟，主要用于测试。
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine 创建状态机。extractor 为空时使用关键词推断。
func NewMachine(registry *skill.Registry, extractor preference.Extractor, opts ...MachineOption) *Machine {
	if extractor == nil {
		extractor = preference.NewKeywordExtractor()
	}
	m := &Machine{registry: registry, extractor: extractor, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Advance 根据当前状态与一条入站消息计算回复与新状态。
// 每次调用最多推进一个阶段，即使计数器已超过阈值。
func (m *Machine) Advance(ctx context.Context, state *activation.State, message string) (Result, error) {
	if state == nil {
		return Result{}, activation.ErrNotFound
	}
	next := state.Clone()
	res := Result{State: next, From: state.CurrentPhase, To: state.CurrentPhase}

	if next.CurrentPhase.Terminal() {
		res.Deferred = true
		return res, nil
	}

	catalog, ok := m.registry.Lookup(next.AgentID)
	if !ok {
		return Result{}, xerrors.New(skill.CodeUnknownAgent, "Empleaido "+next.AgentID+" not found")
	}
	r := replies(next.Preferences.English())

	switch next.CurrentPhase {
	case activation.PhaseSpawn:
		res.Reply = r.spawn(catalog.Profile)
		m.transition(&res)

	case activation.PhaseAwakening:
		res.Reply = r.awakening(catalog)
		m.transition(&res)

	case activation.PhaseTraitDisclosure:
		count := next.MessagesInPhase + 1
		next.MessagesInPhase = count
		res.Reply = r.traits(catalog.Profile)
		if count >= traitDisclosureThreshold {
			res.Reply += "\n\n" + r.traitsDone()
			m.transition(&res)
		}

	case activation.PhaseContextLearning:
		patch, err := m.extractor.Extract(ctx, message)
		if err != nil {
			return Result{}, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "偏好推断失败")
		}
		res.PreferencesUpdated = next.Preferences.Merge(patch)
		res.ShouldUpdateUser = true
		// 偏好可能刚切换了语言。
		r = replies(next.Preferences.English())

		count := next.MessagesInPhase + 1
		next.MessagesInPhase = count
		switch {
		case count >= contextLearningThreshold:
			res.Reply = r.contextDone()
			m.transition(&res)
		case count == 2:
			res.Reply = r.contextQuestions2()
		default:
			res.Reply = r.contextQuestions1()
		}

	case activation.PhaseScopeCalibration:
		count := next.MessagesInPhase + 1
		next.MessagesInPhase = count
		res.Reply = r.scope(catalog)
		if count >= scopeCalibrationThreshold {
			res.Reply += "\n\n" + r.scopeDone()
			m.transition(&res)
		}

	case activation.PhaseComplete:
		now := m.now().UTC()
		next.CompletedAt = &now
		next.BootstrapCleared = true
		res.Reply = r.complete(catalog.Profile, next.Preferences)
		res.Effects = []Effect{{Kind: EffectMarkCompleted}, {Kind: EffectClearBootstrap}}
		m.transition(&res)

	default:
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的激活阶段: %s", next.CurrentPhase))
	}
	return res, nil
}

func (m *Machine) transition(res *Result) {
	res.State.CurrentPhase = res.State.CurrentPhase.Next()
	res.State.MessagesInPhase = 0
	res.To = res.State.CurrentPhase
	res.Transitioned = true
}
