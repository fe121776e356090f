package execution

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"Empleaido-Core/internal/activation"
	"Empleaido-Core/internal/audit"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/gate"
	"Empleaido-Core/internal/life"
	"Empleaido-Core/internal/ratelimit"
	"Empleaido-Core/pkg/logger"
)

// Request 是一次技能执行请求。
type Request struct {
	ActivationID string         `json:"activation_id,omitempty"`
	UserID       string         `json:"user_id"`
	AgentID      string         `json:"agent_id"`
	Skill        string         `json:"skill"`
	Input        map[string]any `json:"input"`
	Tier         string         `json:"tier,omitempty"`
}

// Result 是技能执行的输出。
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response 汇总准入判定与执行结果。Allowed 为 false 时 Message 是给用户的拒绝说明。
type Response struct {
	Allowed              bool         `json:"allowed"`
	Verdict              gate.Verdict `json:"verdict"`
	Message              string       `json:"message,omitempty"`
	RequiresConfirmation bool         `json:"requires_confirmation"`
	ConfirmationID       string       `json:"confirmation_id,omitempty"`
	ExpiresAt            *time.Time   `json:"expires_at,omitempty"`
	Result               *Result      `json:"result,omitempty"`
	Stats                *life.Stats  `json:"stats,omitempty"`
}

// Confirmation 是用户处理待确认结果后的返回。
type Confirmation struct {
	ID     string  `json:"id"`
	Status Status  `json:"status"`
	Result *Result `json:"result,omitempty"`
}

// Service 串联准入、就绪检查、配额、能量、执行、审计与确认。
type Service struct {
	gate        *gate.Gate
	activations activation.Store
	pending     PendingStore
	runner      Runner
	limiter     ratelimit.Limiter
	life        life.Store
	sink        audit.Sink
	ttl         time.Duration
	now         func() time.Time
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithRunner 设置技能执行器。
func WithRunner(r Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithLimiter 设置每日配额限流器。
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithLifeStore 设置成长数值存储。
func WithLifeStore(store life.Store) Option {
	return func(s *Service) { s.life = store }
}

// WithAuditSink 设置执行与确认事件的审计目标。
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithConfirmationTTL 设置待确认结果的有效期。
func WithConfirmationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock 替换时钟。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 构造执行服务。
func NewService(g *gate.Gate, activations activation.Store, pending PendingStore, opts ...Option) *Service {
	s := &Service{
		gate:        g,
		activations: activations,
		pending:     pending,
		runner:      OfflineRunner{},
		ttl:         time.Hour,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Execute 执行一次技能调用。准入拒绝不是错误，通过 Response.Allowed 表达；
// 就绪、配额、能量检查失败以及审计写入失败返回错误。
func (s *Service) Execute(ctx context.Context, req Request) (*Response, error) {
	if s.gate == nil || s.pending == nil || s.activations == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "执行服务未初始化")
	}
	gateReq := gate.Request{
		AgentID:      req.AgentID,
		Skill:        req.Skill,
		Input:        req.Input,
		UserID:       req.UserID,
		ActivationID: req.ActivationID,
	}
	verdict, err := s.gate.Check(ctx, gateReq)
	if err != nil {
		return nil, err
	}
	state, readyErr := s.readyActivation(ctx, req)
	english := state != nil && state.Preferences.English()
	if !verdict.Allowed {
		return &Response{
			Verdict: verdict,
			Message: gate.RejectionMessage(s.gate.Registry(), gateReq, verdict, english),
		}, nil
	}
	if readyErr != nil {
		return nil, readyErr
	}
	if state != nil && strings.TrimSpace(req.UserID) == "" {
		req.UserID = state.UserID
	}

	if s.limiter != nil {
		decision, err := s.limiter.Allow(ctx, req.UserID, req.Tier)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return nil, xerrors.New(xerrors.CodeRateLimited, "Daily limit exceeded. Upgrade to Pro for more executions.",
				xerrors.WithMetadata("tier", decision.Tier),
				xerrors.WithMetadata("limit", strconv.Itoa(decision.Limit)))
		}
	}

	statsKey := req.UserID + ":" + req.AgentID
	if state != nil {
		statsKey = state.ActivationID
	}
	if s.life != nil {
		stats, err := s.life.Get(ctx, statsKey)
		if err != nil {
			return nil, err
		}
		if !stats.CanPerform(life.ActivityTaskCompleted) {
			return nil, xerrors.New(life.CodeInsufficientEnergy, "Empleaido needs rest. Energy too low.",
				xerrors.WithMetadata("energy", strconv.Itoa(stats.Energy)))
		}
	}

	catalog, _ := s.gate.Registry().Lookup(req.AgentID)
	def, _ := catalog.Skill(req.Skill)
	task := Task{Profile: catalog.Profile, Skill: def, Input: req.Input}
	if state != nil {
		task.Preferences = state.Preferences
	}

	started := s.now()
	output, runErr := s.runner.Run(ctx, task)
	activity := life.ActivityTaskCompleted
	outcome := "success"
	if runErr != nil {
		activity = life.ActivityError
		outcome = "failed"
	} else if verdict.RequiresConfirmation() {
		outcome = "pending_confirmation"
	}

	resp := &Response{Allowed: true, Verdict: verdict}
	if s.life != nil {
		stats, err := s.life.Apply(ctx, statsKey, activity)
		if err != nil {
			logger.Named("execution").Warn("更新成长数值失败", slog.String("key", statsKey), slog.Any("error", err))
		} else {
			resp.Stats = &stats
		}
	}

	event := audit.Event{
		Kind:         audit.KindExecution,
		ActivationID: req.ActivationID,
		AgentID:      catalog.Profile.AgentID,
		UserID:       req.UserID,
		Skill:        def.Name,
		Verdict:      string(verdict.Outcome),
		Outcome:      outcome,
	}
	if state != nil {
		event.ActivationID = state.ActivationID
	}
	if runErr != nil {
		event.Detail = runErr.Error()
	}

	if runErr != nil {
		if err := s.append(ctx, event); err != nil {
			return nil, err
		}
		logger.Named("execution").Warn("技能执行失败",
			slog.String("agent_id", event.AgentID),
			slog.String("skill", def.Name),
			slog.Any("error", runErr))
		resp.Result = &Result{Success: false, Error: runErr.Error()}
		return resp, nil
	}

	if !verdict.RequiresConfirmation() {
		if err := s.append(ctx, event); err != nil {
			return nil, err
		}
		resp.Result = &Result{Success: true, Output: output}
		logger.Named("execution").Info("技能执行完成",
			slog.String("agent_id", event.AgentID),
			slog.String("skill", def.Name),
			slog.Duration("elapsed", s.now().Sub(started)))
		return resp, nil
	}

	output = output + "\n\n" + Disclaimer(catalog.Profile, def, english)
	now := s.now().UTC()
	p := &Pending{
		ID:           uuid.NewString(),
		ActivationID: event.ActivationID,
		UserID:       req.UserID,
		AgentID:      catalog.Profile.AgentID,
		Skill:        def.Name,
		Input:        req.Input,
		Output:       output,
		Status:       StatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.pending.Create(ctx, p); err != nil {
		return nil, err
	}
	event.Detail = "confirmation_id=" + p.ID
	if err := s.append(ctx, event); err != nil {
		return nil, err
	}
	resp.RequiresConfirmation = true
	resp.ConfirmationID = p.ID
	resp.ExpiresAt = &p.ExpiresAt
	resp.Result = &Result{Success: true, Output: output}
	resp.Message = VerificationMessage(output, english)
	return resp, nil
}

// Confirm 处理用户对关键技能结果的确认或拒绝。已过期的记录被标记为 expired 并返回错误。
func (s *Service) Confirm(ctx context.Context, id string, approve bool) (*Confirmation, error) {
	if s.pending == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "执行服务未初始化")
	}
	p, err := s.pending.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, xerrors.Wrap(CodeConfirmationResolved, ErrConfirmationResolved, "confirmation already "+string(p.Status),
			xerrors.WithMetadata("status", string(p.Status)))
	}

	now := s.now().UTC()
	status := StatusRejected
	switch {
	case p.Expired(now):
		status = StatusExpired
	case approve:
		status = StatusConfirmed
	}
	if err := s.pending.Resolve(ctx, id, status, now); err != nil {
		return nil, err
	}

	if err := s.append(ctx, audit.Event{
		Kind:         audit.KindConfirmation,
		ActivationID: p.ActivationID,
		AgentID:      p.AgentID,
		UserID:       p.UserID,
		Skill:        p.Skill,
		Verdict:      string(status),
		Outcome:      string(status),
		Detail:       "confirmation_id=" + p.ID,
	}); err != nil {
		return nil, err
	}

	if status == StatusExpired {
		return nil, xerrors.New(CodeConfirmationExpired, "confirmation expired", xerrors.WithMetadata("confirmation_id", id))
	}
	out := &Confirmation{ID: id, Status: status}
	if status == StatusConfirmed {
		out.Result = &Result{Success: true, Output: p.Output}
	}
	logger.Audit().Info("关键技能结果已处理",
		slog.String("confirmation_id", id),
		slog.String("skill", p.Skill),
		slog.String("status", string(status)))
	return out, nil
}

// Pending 返回待确认记录。
func (s *Service) Pending(ctx context.Context, id string) (*Pending, error) {
	if s.pending == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "执行服务未初始化")
	}
	return s.pending.Get(ctx, id)
}

// readyActivation 定位请求对应的激活并要求其已进入 operational。
// 既没有 activation_id 也没有 user_id 加 agent_id 时返回 INVALID_ARGUMENT。
// 智能体未知时返回 nil，准入检查已经拒绝了这类请求。未就绪时同时返回状态与错误。
func (s *Service) readyActivation(ctx context.Context, req Request) (*activation.State, error) {
	var (
		state *activation.State
		err   error
	)
	switch {
	case strings.TrimSpace(req.ActivationID) != "":
		state, err = s.activations.Get(ctx, req.ActivationID)
	case strings.TrimSpace(req.UserID) != "" && strings.TrimSpace(req.AgentID) != "":
		agentID := req.AgentID
		if catalog, ok := s.gate.Registry().Lookup(agentID); ok {
			agentID = catalog.Profile.AgentID
		} else {
			return nil, nil
		}
		state, err = s.activations.FindByUserAgent(ctx, req.UserID, agentID)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "activation_id or user_id with agent_id is required")
	}
	if err != nil {
		return nil, err
	}
	if catalog, ok := s.gate.Registry().Lookup(req.AgentID); ok && catalog.Profile.AgentID != state.AgentID {
		return state, xerrors.New(xerrors.CodeInvalidArgument, "activation belongs to a different empleaido",
			xerrors.WithMetadata("activation_id", state.ActivationID))
	}
	if !state.Operational() {
		return state, xerrors.New(CodeAgentNotReady, "Empleaido has not completed onboarding",
			xerrors.WithMetadata("activation_id", state.ActivationID),
			xerrors.WithMetadata("phase", string(state.CurrentPhase)))
	}
	return state, nil
}

func (s *Service) append(ctx context.Context, event audit.Event) error {
	if s.sink == nil {
		return nil
	}
	if err := s.sink.Append(ctx, event); err != nil {
		logger.Named("execution").Error("审计记录失败",
			slog.String("kind", string(event.Kind)),
			slog.String("skill", event.Skill),
			slog.Any("error", err))
		return err
	}
	return nil
}
