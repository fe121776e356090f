package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Empleaido-Core/internal/activation"
	"Empleaido-Core/internal/audit"
	"Empleaido-Core/internal/execution"
	"Empleaido-Core/internal/gate"
	"Empleaido-Core/internal/life"
	"Empleaido-Core/internal/observability/metrics"
	"Empleaido-Core/internal/onboarding"
	"Empleaido-Core/internal/skill"
)

type testEnv struct {
	handler http.Handler
	sink    *audit.MemorySink
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	registry := skill.Default()
	store := activation.NewMemoryStore()
	sink := audit.NewMemorySink()
	m := metrics.New(false)
	lifeStore := life.NewMemoryStore()

	g := gate.New(registry, sink, gate.WithObserver(func(req gate.Request, v gate.Verdict) {
		m.ObserveVerdict(req.AgentID, string(v.Outcome), string(v.ReasonCode))
	}))
	exec := execution.NewService(g, store, execution.NewMemoryPendingStore(),
		execution.WithRunner(execution.OfflineRunner{}),
		execution.WithAuditSink(sink),
		execution.WithLifeStore(lifeStore))
	onb := onboarding.NewService(store, onboarding.NewMachine(registry, nil), registry,
		onboarding.WithAuditSink(sink))

	srv := NewServer(":0", Dependencies{
		Onboarding: onb,
		Execution:  exec,
		Gate:       g,
		Registry:   registry,
		Audit:      sink,
		Life:       lifeStore,
		Metrics:    m,
	})
	return &testEnv{handler: srv.Handler(), sink: sink, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func (e *testEnv) onboard(t *testing.T, userID, agentID string) string {
	t.Helper()
	rec, body := e.do(t, http.MethodPost, "/api/v1/activations", map[string]string{"user_id": userID, "agent_id": agentID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := body["activation_id"].(string)

	for _, msg := range []string{"hola", "ok", "ok", "tengo un negocio", "de tú y breve", "diario", "ok", "listo", "gracias"} {
		rec, _ := e.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"activation_id": id, "message": msg})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return id
}

func TestActivationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/v1/activations", map[string]string{"user_id": "u1", "agent_id": "sera"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "awakening", body["current_phase"])
	id := body["activation_id"].(string)

	rec, again := env.do(t, http.MethodPost, "/api/v1/activations", map[string]string{"user_id": "u1", "agent_id": "sera"})
	assert.Equal(t, http.StatusOK, rec.Code, "second activation returns the existing record")
	assert.Equal(t, id, again["activation_id"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/activations/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", body["user_id"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/activations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ACTIVATION_NOT_FOUND", body["error"].(map[string]any)["code"])

	rec, _ = env.do(t, http.MethodPost, "/api/v1/activations", map[string]string{"user_id": "u1", "agent_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = env.do(t, http.MethodPut, "/api/v1/activations/"+id+"/preferences", map[string]string{"language": "english"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "english", body["preferences"].(map[string]any)["language"])
}

func TestMessagesRequireExistingActivation(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"user_id": "u1", "agent_id": "sera", "message": "hola"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"activation_id": "x", "message": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	env.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestExecuteRequiresOperational(t *testing.T) {
	env := newTestEnv(t)
	_, body := env.do(t, http.MethodPost, "/api/v1/activations", map[string]string{"user_id": "u1", "agent_id": "sera"})
	id := body["activation_id"].(string)

	rec, body := env.do(t, http.MethodPost, "/api/v1/skills/execute", map[string]any{
		"activation_id": id, "user_id": "u1", "agent_id": "sera", "skill": "classify_ncf",
		"input": map[string]any{"ncf_string": "B0100000001"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AGENT_NOT_READY", body["error"].(map[string]any)["code"])

	rec, body = env.do(t, http.MethodPost, "/api/v1/skills/execute", map[string]any{
		"agent_id": "sera", "skill": "classify_ncf",
		"input": map[string]any{"ncf_string": "B0100000001"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", body["error"].(map[string]any)["code"])
}

func TestExecuteVerdicts(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "u1", "sera")

	execute := func(skillName string, input map[string]any) (*httptest.ResponseRecorder, map[string]any) {
		return env.do(t, http.MethodPost, "/api/v1/skills/execute", map[string]any{
			"activation_id": id, "user_id": "u1", "agent_id": "sera", "skill": skillName, "input": input,
		})
	}

	rec, body := execute("classify_ncf", map[string]any{"ncf_string": "B0100000001"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, false, body["requires_confirmation"])
	assert.Contains(t, body["result"].(map[string]any)["output"], "B0100000001")

	rec, body = execute("tax_planning", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "requires_unlock", body["reason_code"])
	assert.Contains(t, body["alternative_skills"], "calculate_itbis")
	assert.NotEmpty(t, body["message"])

	rec, body = execute("classify_ncf", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body["reason_code"])

	rec, body = execute("launch_rocket", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "skill_not_found", body["reason_code"])
}

func TestCriticalSkillConfirmationFlow(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "u1", "sera")

	rec, body := env.do(t, http.MethodPost, "/api/v1/skills/execute", map[string]any{
		"activation_id": id, "user_id": "u1", "agent_id": "sera", "skill": "calculate_itbis",
		"input": map[string]any{"invoices": []any{map[string]any{"amount": 1000}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["requires_confirmation"])
	assert.Equal(t, "confirm", body["outcome"])
	confirmationID, _ := body["confirmation_id"].(string)
	require.NotEmpty(t, confirmationID)

	rec, body = env.do(t, http.MethodGet, "/api/v1/confirmations/"+confirmationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", body["status"])

	rec, _ = env.do(t, http.MethodPost, "/api/v1/confirmations/"+confirmationID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "approve is required")

	rec, body = env.do(t, http.MethodPost, "/api/v1/confirmations/"+confirmationID, map[string]any{"approve": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "confirmed", body["status"])

	rec, body = env.do(t, http.MethodPost, "/api/v1/confirmations/"+confirmationID, map[string]any{"approve": false})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFIRMATION_RESOLVED", body["error"].(map[string]any)["code"])

	rec, _ = env.do(t, http.MethodPost, "/api/v1/confirmations/missing", map[string]any{"approve": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSkillsAndValidate(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/v1/skills?agent_id=kael", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["native"], 3)
	assert.Len(t, body["locked"], 2)

	rec, body = env.do(t, http.MethodGet, "/api/v1/skills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["agents"], 5)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/skills?agent_id=ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = env.do(t, http.MethodPost, "/api/v1/skills/validate", map[string]any{"agent_id": "sera", "skill": "isr_calculation"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, "requires_unlock", body["reason_code"])
}

func TestAuditHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "u1", "nora")
	env.do(t, http.MethodPost, "/api/v1/skills/execute", map[string]any{
		"activation_id": id, "user_id": "u1", "agent_id": "nora", "skill": "churn_analysis",
	})

	rec, body := env.do(t, http.MethodGet, "/api/v1/audit?activation_id="+id+"&kind=phase_transition", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["events"], 6)

	rec, body = env.do(t, http.MethodGet, "/api/v1/audit?kind=validation&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["events"], 1)

	rec, body = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `empleaido_gate_verdicts_total{agent="nora",outcome="deny",reason_code="requires_unlock"} 1`)
	assert.Contains(t, rec.Body.String(), `empleaido_http_requests_total{code="200",handler="messages",method="POST"} 9`)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	id := env.onboard(t, "u1", "lior")
	env.do(t, http.MethodPost, "/api/v1/skills/execute", map[string]any{
		"activation_id": id, "user_id": "u1", "agent_id": "lior", "skill": "process_optimization",
	})

	rec, body := env.do(t, http.MethodGet, "/api/v1/activations/"+id+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(20), stats["experience"])
	assert.Equal(t, float64(90), stats["energy"])
	assert.Equal(t, false, body["needs_rest"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec, _ = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36, "a uuid is assigned when the caller sends none")
}
