package onboarding

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"Empleaido-Core/internal/activation"
	"Empleaido-Core/internal/audit"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/preference"
	"Empleaido-Core/internal/skill"
	"Empleaido-Core/pkg/logger"
)

// Workspace 管理智能体工作区中的引导文件。实现必须是幂等的。
type Workspace interface {
	Prepare(ctx context.Context, state *activation.State, catalog *skill.Catalog) error
	Clear(ctx context.Context, state *activation.State) error
}

// Routed 是 operational 阶段由路由器给出的回复。
type Routed struct {
	Reply  string `json:"reply"`
	Intent string `json:"intent"`
	Detail any    `json:"detail,omitempty"`
}

// Router 处理已完成激活的消息：意图识别、安全检查与技能准入。
type Router interface {
	Route(ctx context.Context, state *activation.State, message string) (Routed, error)
}

// MessageRequest 是一条入站消息，通过 ActivationID 或 (UserID, AgentID) 定位激活。
type MessageRequest struct {
	ActivationID string `json:"activation_id"`
	UserID       string `json:"user_id"`
	AgentID      string `json:"agent_id"`
	Message      string `json:"message"`
}

// MessageResponse 是处理入站消息的结果。
type MessageResponse struct {
	ActivationID       string           `json:"activation_id"`
	Reply              string           `json:"reply"`
	Phase              activation.Phase `json:"phase"`
	PreferencesUpdated bool             `json:"preferences_updated"`
	ShouldUpdateUser   bool             `json:"should_update_user"`
	Transitioned       bool             `json:"transitioned"`
	Intent             string           `json:"intent,omitempty"`
	Detail             any              `json:"detail,omitempty"`
}

// TransitionObserver 在阶段迁移成功保存后被调用。
type TransitionObserver func(agentID string, from, to activation.Phase)

// Service 负责读取状态、推进状态机、执行副作用并以乐观并发方式保存。
type Service struct {
	store     activation.Store
	machine   *Machine
	registry  *skill.Registry
	sink      audit.Sink
	workspace Workspace
	router    Router
	observer  TransitionObserver
	retries   int
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithWorkspace 设置工作区管理器。
func WithWorkspace(w Workspace) Option {
	return func(s *Service) { s.workspace = w }
}

// WithRouter 设置 operational 阶段的路由器。
func WithRouter(r Router) Option {
	return func(s *Service) { s.router = r }
}

// WithAuditSink 设置审计目标。
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithTransitionObserver 设置阶段迁移观察者。
func WithTransitionObserver(o TransitionObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithRetries 设置版本冲突时的最大重试次数。
func WithRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

// NewService 构造激活服务。
func NewService(store activation.Store, machine *Machine, registry *skill.Registry, opts ...Option) *Service {
	s := &Service{store: store, machine: machine, registry: registry, retries: 5}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Activate 为用户创建激活。已存在时返回现有记录，created 为 false。
func (s *Service) Activate(ctx context.Context, userID, agentID string) (*activation.State, bool, error) {
	if s.store == nil || s.machine == nil {
		return nil, false, xerrors.New(xerrors.CodeInitializationFailure, "激活服务未初始化")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, xerrors.New(xerrors.CodeInvalidArgument, "user_id 不能为空")
	}
	catalog, err := s.registry.Resolve(agentID)
	if err != nil {
		return nil, false, err
	}
	canonical := catalog.Profile.AgentID

	state, err := s.store.Create(ctx, userID, canonical)
	if err != nil {
		if stdErrors.Is(err, activation.ErrExists) {
			existing, getErr := s.store.FindByUserAgent(ctx, userID, canonical)
			if getErr != nil {
				return nil, false, getErr
			}
			// 上次创建后引导文件可能没有写成功，awakening 阶段重新写入。
			if existing.CurrentPhase == activation.PhaseAwakening && s.workspace != nil {
				if err := s.workspace.Prepare(ctx, existing, catalog); err != nil {
					return nil, false, err
				}
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	if s.workspace != nil {
		if err := s.workspace.Prepare(ctx, state, catalog); err != nil {
			logger.Named("onboarding").Error("写入工作区引导文件失败",
				slog.String("activation_id", state.ActivationID), slog.Any("error", err))
			return nil, false, err
		}
	}
	s.appendTransition(ctx, state, activation.PhaseSpawn, state.CurrentPhase)
	logger.Audit().Info("激活已创建",
		slog.String("activation_id", state.ActivationID),
		slog.String("user_id", userID),
		slog.String("agent_id", canonical),
	)
	return state, true, nil
}

// Get 返回激活状态。
func (s *Service) Get(ctx context.Context, id string) (*activation.State, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "激活存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// HandleMessage 处理一条入站消息。激活不存在时返回 NOT_FOUND，不会隐式创建。
func (s *Service) HandleMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if s.store == nil || s.machine == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "激活服务未初始化")
	}
	id, err := s.resolveID(ctx, req)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.retries; attempt++ {
		state, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		res, err := s.machine.Advance(ctx, state, req.Message)
		if err != nil {
			return nil, err
		}
		if res.Deferred {
			return s.route(ctx, state, req.Message)
		}

		if res.HasEffect(EffectClearBootstrap) && s.workspace != nil {
			if err := s.workspace.Clear(ctx, res.State); err != nil {
				return nil, err
			}
		}

		if err := s.store.Save(ctx, res.State); err != nil {
			if stdErrors.Is(err, activation.ErrConflict) {
				logger.Named("onboarding").Debug("激活版本冲突，重新读取",
					slog.String("activation_id", id), slog.Int("attempt", attempt))
				continue
			}
			return nil, err
		}

		if res.Transitioned {
			s.appendTransition(ctx, res.State, res.From, res.To)
		}
		return &MessageResponse{
			ActivationID:       id,
			Reply:              res.Reply,
			Phase:              res.State.CurrentPhase,
			PreferencesUpdated: res.PreferencesUpdated,
			ShouldUpdateUser:   res.ShouldUpdateUser,
			Transitioned:       res.Transitioned,
		}, nil
	}
	return nil, xerrors.Wrap(activation.CodeActivationConflict, activation.ErrConflict, "激活并发冲突，重试次数已耗尽",
		xerrors.WithMetadata("activation_id", id), xerrors.WithRetryable(true))
}

// UpdatePreferences 写入用户显式确认的偏好，之后的推断不会覆盖这些字段。
func (s *Service) UpdatePreferences(ctx context.Context, id string, patch preference.Patch) (*activation.State, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "激活存储未初始化")
	}
	patch = patch.Sanitize()
	if patch.Empty() {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "没有可识别的偏好字段")
	}
	for attempt := 1; attempt <= s.retries; attempt++ {
		state, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !state.Preferences.Confirm(patch) {
			return state, nil
		}
		if err := s.store.Save(ctx, state); err != nil {
			if stdErrors.Is(err, activation.ErrConflict) {
				continue
			}
			return nil, err
		}
		return state, nil
	}
	return nil, xerrors.Wrap(activation.CodeActivationConflict, activation.ErrConflict, "激活并发冲突，重试次数已耗尽",
		xerrors.WithMetadata("activation_id", id))
}

func (s *Service) resolveID(ctx context.Context, req MessageRequest) (string, error) {
	if id := strings.TrimSpace(req.ActivationID); id != "" {
		return id, nil
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.AgentID) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "需要 activation_id 或 user_id 与 agent_id")
	}
	agentID := req.AgentID
	if catalog, ok := s.registry.Lookup(agentID); ok {
		agentID = catalog.Profile.AgentID
	}
	state, err := s.store.FindByUserAgent(ctx, strings.TrimSpace(req.UserID), agentID)
	if err != nil {
		return "", err
	}
	return state.ActivationID, nil
}

func (s *Service) route(ctx context.Context, state *activation.State, message string) (*MessageResponse, error) {
	resp := &MessageResponse{ActivationID: state.ActivationID, Phase: state.CurrentPhase}
	if s.router == nil {
		resp.Reply = "Operational mode - onboarding complete"
		return resp, nil
	}
	routed, err := s.router.Route(ctx, state, message)
	if err != nil {
		return nil, err
	}
	resp.Reply = routed.Reply
	resp.Intent = routed.Intent
	resp.Detail = routed.Detail
	return resp, nil
}

func (s *Service) appendTransition(ctx context.Context, state *activation.State, from, to activation.Phase) {
	if s.observer != nil {
		s.observer(state.AgentID, from, to)
	}
	if s.sink == nil {
		return
	}
	err := s.sink.Append(ctx, audit.Event{
		Kind:         audit.KindPhaseTransition,
		ActivationID: state.ActivationID,
		AgentID:      state.AgentID,
		UserID:       state.UserID,
		Verdict:      string(from) + "->" + string(to),
	})
	if err != nil {
		// 状态已经保存，迁移记录丢失只影响审计视图。
		logger.Named("onboarding").Error("阶段迁移审计写入失败",
			slog.String("activation_id", state.ActivationID), slog.Any("error", err))
	}
}
