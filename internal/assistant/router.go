package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"Empleaido-Core/internal/activation"
	"Empleaido-Core/internal/audit"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/execution"
	"Empleaido-Core/internal/intent"
	"Empleaido-Core/internal/knowledge"
	"Empleaido-Core/internal/life"
	"Empleaido-Core/internal/onboarding"
	"Empleaido-Core/internal/preference"
	"Empleaido-Core/internal/skill"
	"Empleaido-Core/pkg/logger"
)

// 路由结果中的意图标签。
const (
	IntentSafety       = "safety"
	IntentSkill        = "skill"
	IntentConversation = "conversation"
)

// Executor 执行经由聊天触发的技能调用。
type Executor interface {
	Execute(ctx context.Context, req execution.Request) (*execution.Response, error)
}

// Completer 是文本生成模型的最小接口。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Router 处理 operational 阶段的消息：安全筛查、意图识别、技能准入与普通对话。
type Router struct {
	registry  *skill.Registry
	executor  Executor
	model     Completer
	knowledge knowledge.Provider
	semantic  *SemanticMatcher
	sink      audit.Sink
}

var _ onboarding.Router = (*Router)(nil)

// Option 定义 Router 的可选配置。
type Option func(*Router)

// WithModel 设置普通对话使用的模型。
func WithModel(m Completer) Option {
	return func(r *Router) { r.model = m }
}

// WithKnowledge 设置对话引用的知识库。
func WithKnowledge(p knowledge.Provider) Option {
	return func(r *Router) { r.knowledge = p }
}

// WithSemanticMatcher 启用基于向量的技能匹配。
func WithSemanticMatcher(m *SemanticMatcher) Option {
	return func(r *Router) { r.semantic = m }
}

// WithAuditSink 设置安全筛查事件的审计目标。
func WithAuditSink(sink audit.Sink) Option {
	return func(r *Router) { r.sink = sink }
}

// NewRouter 创建路由器。
func NewRouter(registry *skill.Registry, executor Executor, opts ...Option) *Router {
	r := &Router{registry: registry, executor: executor}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Route 实现 onboarding.Router 接口。
func (r *Router) Route(ctx context.Context, state *activation.State, message string) (onboarding.Routed, error) {
	if state == nil {
		return onboarding.Routed{}, activation.ErrNotFound
	}
	english := state.Preferences.English()

	if rejection := intent.Screen(message, english); rejection != nil {
		r.auditSafety(ctx, state, rejection)
		return onboarding.Routed{Reply: rejection.Text(), Intent: IntentSafety, Detail: rejection}, nil
	}

	catalog, err := r.registry.Resolve(state.AgentID)
	if err != nil {
		return onboarding.Routed{}, err
	}
	in := intent.Classify(catalog, message)
	if in.Kind == intent.KindConversation && r.semantic != nil {
		name, score, err := r.semantic.Match(ctx, catalog, message)
		if err != nil {
			logger.Named("assistant").Warn("语义技能匹配失败，按普通对话处理",
				slog.String("activation_id", state.ActivationID), slog.Any("error", err))
		} else if name != "" {
			logger.Named("assistant").Debug("语义匹配到技能",
				slog.String("skill", name), slog.Float64("score", score))
			in = intent.Intent{Kind: intent.KindSkill, Skill: name, Input: map[string]any{}}
		}
	}

	if in.Kind == intent.KindSkill {
		return r.routeSkill(ctx, state, in, english)
	}
	return r.converse(ctx, state, catalog, message), nil
}

func (r *Router) routeSkill(ctx context.Context, state *activation.State, in intent.Intent, english bool) (onboarding.Routed, error) {
	if in.InputError != "" {
		reply := fmt.Sprintf("No pude leer los parámetros de /%s. Envíalos como un objeto JSON, por ejemplo: /%s {\"campo\": \"valor\"}", in.Skill, in.Skill)
		if english {
			reply = fmt.Sprintf("I couldn't read the parameters for /%s. Send them as a JSON object, e.g. /%s {\"field\": \"value\"}", in.Skill, in.Skill)
		}
		return onboarding.Routed{Reply: reply, Intent: IntentSkill, Detail: in}, nil
	}
	if r.executor == nil {
		return onboarding.Routed{}, xerrors.New(xerrors.CodeInitializationFailure, "技能执行服务未初始化")
	}

	resp, err := r.executor.Execute(ctx, execution.Request{
		ActivationID: state.ActivationID,
		UserID:       state.UserID,
		AgentID:      state.AgentID,
		Skill:        in.Skill,
		Input:        in.Input,
	})
	if err != nil {
		if reply, ok := quotaReply(err, english); ok {
			return onboarding.Routed{Reply: reply, Intent: IntentSkill}, nil
		}
		return onboarding.Routed{}, err
	}

	routed := onboarding.Routed{Intent: IntentSkill, Detail: resp}
	switch {
	case !resp.Allowed, resp.RequiresConfirmation:
		routed.Reply = resp.Message
	case resp.Result != nil && resp.Result.Success:
		routed.Reply = resp.Result.Output
	case resp.Result != nil:
		routed.Reply = "No pude completar la tarea: " + resp.Result.Error
		if english {
			routed.Reply = "I couldn't complete the task: " + resp.Result.Error
		}
	}
	return routed, nil
}

// quotaReply 把配额与能量不足转换为对话回复，而不是请求错误。
func quotaReply(err error, english bool) (string, bool) {
	switch {
	case xerrors.HasCode(err, xerrors.CodeRateLimited):
		if english {
			return "You've reached today's execution limit for your plan. Upgrade to Pro for more executions.", true
		}
		return "Alcanzaste el límite diario de ejecuciones de tu plan. Actualiza a Pro para más ejecuciones.", true
	case xerrors.HasCode(err, life.CodeInsufficientEnergy):
		if english {
			return "I need to rest for a bit, my energy is too low. Try again later.", true
		}
		return "Necesito descansar un poco, mi energía está muy baja. Inténtalo más tarde.", true
	}
	return "", false
}

func (r *Router) converse(ctx context.Context, state *activation.State, catalog *skill.Catalog, message string) onboarding.Routed {
	routed := onboarding.Routed{Intent: IntentConversation}
	if r.model != nil {
		var snippets []knowledge.Snippet
		if r.knowledge != nil {
			snippets = r.knowledge.Query(state.AgentID, message)
		}
		reply, err := r.model.Complete(ctx, conversationPrompt(catalog.Profile, state.Preferences, snippets, message))
		if err == nil && strings.TrimSpace(reply) != "" {
			routed.Reply = strings.TrimSpace(reply)
			return routed
		}
		logger.Named("assistant").Warn("对话模型调用失败，使用默认回复",
			slog.String("activation_id", state.ActivationID), slog.Any("error", err))
	}
	routed.Reply = fallbackReply(catalog, state.Preferences.English())
	return routed
}

func conversationPrompt(profile skill.Profile, prefs preference.Preferences, snippets []knowledge.Snippet, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an AI employee specialised in %s. Never pretend to be human.\n", profile.DisplayName, profile.Specialty)
	if prefs.English() {
		b.WriteString("Answer in English.\n")
	} else {
		b.WriteString("Responde en español.\n")
	}
	if prefs.Formality != "" {
		fmt.Fprintf(&b, "Formality: %s.\n", prefs.Formality)
	}
	if prefs.CommunicationStyle != "" {
		fmt.Fprintf(&b, "Style: %s.\n", prefs.CommunicationStyle)
	}
	if prefs.WorkType != "" {
		fmt.Fprintf(&b, "The user works as: %s.\n", prefs.WorkType)
	}
	if len(snippets) > 0 {
		b.WriteString("Reference notes:\n")
		for _, s := range snippets {
			fmt.Fprintf(&b, "- %s: %s\n", s.Title, s.Content)
		}
	}
	fmt.Fprintf(&b, "User: %s\n", message)
	return b.String()
}

func fallbackReply(catalog *skill.Catalog, english bool) string {
	var b strings.Builder
	if english {
		fmt.Fprintf(&b, "I'm %s. I can help you with:\n", catalog.Profile.DisplayName)
	} else {
		fmt.Fprintf(&b, "Soy %s. Puedo ayudarte con:\n", catalog.Profile.DisplayName)
	}
	for _, def := range catalog.Native() {
		fmt.Fprintf(&b, "- /%s: %s\n", def.Name, def.Description)
	}
	if english {
		b.WriteString("Send /skill_name {json} to run a skill.")
	} else {
		b.WriteString("Envía /nombre_skill {json} para ejecutar una habilidad.")
	}
	return b.String()
}

func (r *Router) auditSafety(ctx context.Context, state *activation.State, rejection *intent.Rejection) {
	logger.Audit().Info("安全筛查拒绝请求",
		slog.String("activation_id", state.ActivationID),
		slog.String("category", string(rejection.Category)))
	if r.sink == nil {
		return
	}
	err := r.sink.Append(ctx, audit.Event{
		Kind:         audit.KindSafety,
		ActivationID: state.ActivationID,
		AgentID:      state.AgentID,
		UserID:       state.UserID,
		Verdict:      "deny",
		ReasonCode:   string(rejection.Category),
		Reason:       rejection.Reason,
	})
	if err != nil {
		// 拒绝本身已经是安全结果，审计失败只记录日志。
		attrs := append([]any{slog.String("activation_id", state.ActivationID)}, xerrors.LogAttrs(err)...)
		logger.Component(ctx, "assistant").Error("安全筛查审计写入失败", attrs...)
	}
}
