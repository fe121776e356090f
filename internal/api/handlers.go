package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Empleaido-Core/internal/audit"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/execution"
	"Empleaido-Core/internal/gate"
	"Empleaido-Core/internal/life"
	"Empleaido-Core/internal/onboarding"
	"Empleaido-Core/internal/preference"
	"Empleaido-Core/internal/skill"
)

type createActivationRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
}

func (s *Server) handleCreateActivation(w http.ResponseWriter, r *http.Request) {
	var req createActivationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, "activations_create", err)
		return
	}
	state, created, err := s.deps.Onboarding.Activate(r.Context(), req.UserID, req.AgentID)
	if err != nil {
		s.writeError(r.Context(), w, "activations_create", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, state)
}

func (s *Server) handleGetActivation(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Onboarding.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(r.Context(), w, "activations_get", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type statsResponse struct {
	ActivationID string     `json:"activation_id"`
	Stats        life.Stats `json:"stats"`
	NextLevelXP  int        `json:"next_level_xp"`
	Progress     int        `json:"progress"`
	NeedsRest    bool       `json:"needs_rest"`
}

func (s *Server) handleActivationStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Life == nil {
		s.writeError(r.Context(), w, "activations_stats", xerrors.New(xerrors.CodeInitializationFailure, "成长数值存储未配置"))
		return
	}
	state, err := s.deps.Onboarding.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(r.Context(), w, "activations_stats", err)
		return
	}
	stats, err := s.deps.Life.Get(r.Context(), state.ActivationID)
	if err != nil {
		s.writeError(r.Context(), w, "activations_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ActivationID: state.ActivationID,
		Stats:        stats,
		NextLevelXP:  stats.XPForNextLevel(),
		Progress:     stats.Progress(),
		NeedsRest:    stats.NeedsRest(),
	})
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch preference.Patch
	if err := decodeJSON(r, &patch); err != nil {
		s.writeError(r.Context(), w, "activations_preferences", err)
		return
	}
	state, err := s.deps.Onboarding.UpdatePreferences(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(r.Context(), w, "activations_preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req onboarding.MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, "messages", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(r.Context(), w, "messages", xerrors.New(xerrors.CodeInvalidArgument, "message 不能为空"))
		return
	}
	resp, err := s.deps.Onboarding.HandleMessage(r.Context(), req)
	if err != nil {
		s.writeError(r.Context(), w, "messages", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type agentSkills struct {
	Profile skill.Profile      `json:"profile"`
	Native  []skill.Definition `json:"native"`
	Locked  []skill.Definition `json:"locked"`
}

func newAgentSkills(c *skill.Catalog) agentSkills {
	return agentSkills{Profile: c.Profile, Native: c.Native(), Locked: c.Locked()}
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	if agentID := strings.TrimSpace(r.URL.Query().Get("agent_id")); agentID != "" {
		catalog, err := s.deps.Registry.Resolve(agentID)
		if err != nil {
			s.writeError(r.Context(), w, "skills_list", err)
			return
		}
		writeJSON(w, http.StatusOK, newAgentSkills(catalog))
		return
	}
	agents := make([]agentSkills, 0)
	for _, id := range s.deps.Registry.Agents() {
		if catalog, ok := s.deps.Registry.Lookup(id); ok {
			agents = append(agents, newAgentSkills(catalog))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

type validateResponse struct {
	gate.Verdict
	Message string `json:"message,omitempty"`
}

func (s *Server) handleValidateSkill(w http.ResponseWriter, r *http.Request) {
	var req gate.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, "skills_validate", err)
		return
	}
	verdict, err := s.deps.Gate.Check(r.Context(), req)
	if err != nil {
		s.writeError(r.Context(), w, "skills_validate", err)
		return
	}
	resp := validateResponse{Verdict: verdict}
	if !verdict.Allowed {
		resp.Message = gate.RejectionMessage(s.deps.Registry, req, verdict, false)
	}
	writeJSON(w, http.StatusOK, resp)
}

type executeResponse struct {
	Allowed              bool              `json:"allowed"`
	Outcome              gate.Outcome      `json:"outcome"`
	Reason               string            `json:"reason,omitempty"`
	ReasonCode           gate.ReasonCode   `json:"reason_code,omitempty"`
	AlternativeSkills    []string          `json:"alternative_skills,omitempty"`
	Message              string            `json:"message,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
	ConfirmationID       string            `json:"confirmation_id,omitempty"`
	ExpiresAt            *time.Time        `json:"expires_at,omitempty"`
	Result               *execution.Result `json:"result,omitempty"`
	Stats                *life.Stats       `json:"stats,omitempty"`
}

func (s *Server) handleExecuteSkill(w http.ResponseWriter, r *http.Request) {
	var req execution.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, "skills_execute", err)
		return
	}
	resp, err := s.deps.Execution.Execute(r.Context(), req)
	if err != nil {
		s.writeError(r.Context(), w, "skills_execute", err)
		return
	}
	body := executeResponse{
		Allowed:              resp.Allowed,
		Outcome:              resp.Verdict.Outcome,
		Reason:               resp.Verdict.Reason,
		ReasonCode:           resp.Verdict.ReasonCode,
		AlternativeSkills:    resp.Verdict.AlternativeSkills,
		Message:              resp.Message,
		RequiresConfirmation: resp.RequiresConfirmation,
		ConfirmationID:       resp.ConfirmationID,
		ExpiresAt:            resp.ExpiresAt,
		Result:               resp.Result,
		Stats:                resp.Stats,
	}
	if !resp.Allowed {
		writeJSON(w, verdictStatus(resp.Verdict.ReasonCode), body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetConfirmation(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Execution.Pending(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(r.Context(), w, "confirmations_get", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type resolveRequest struct {
	Approve *bool `json:"approve"`
}

func (s *Server) handleResolveConfirmation(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, "confirmations_resolve", err)
		return
	}
	if req.Approve == nil {
		s.writeError(r.Context(), w, "confirmations_resolve", xerrors.New(xerrors.CodeInvalidArgument, "approve 字段必填"))
		return
	}
	confirmation, err := s.deps.Execution.Confirm(r.Context(), r.PathValue("id"), *req.Approve)
	if err != nil {
		if xerrors.CodeOf(err) == execution.CodeConfirmationExpired {
			s.deps.Metrics.ObserveConfirmation(string(execution.StatusExpired))
		}
		s.writeError(r.Context(), w, "confirmations_resolve", err)
		return
	}
	s.deps.Metrics.ObserveConfirmation(string(confirmation.Status))
	writeJSON(w, http.StatusOK, confirmation)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		s.writeError(r.Context(), w, "audit_list", xerrors.New(xerrors.CodeInitializationFailure, "审计查询未配置"))
		return
	}
	q := r.URL.Query()
	filter := audit.Filter{
		ActivationID: q.Get("activation_id"),
		AgentID:      q.Get("agent_id"),
		UserID:       q.Get("user_id"),
		Kind:         audit.Kind(q.Get("kind")),
		Limit:        100,
	}
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	events, err := s.deps.Audit.List(r.Context(), filter)
	if err != nil {
		s.writeError(r.Context(), w, "audit_list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
