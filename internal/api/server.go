package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"Empleaido-Core/internal/audit"
	"Empleaido-Core/internal/execution"
	"Empleaido-Core/internal/gate"
	"Empleaido-Core/internal/life"
	"Empleaido-Core/internal/observability/alerting"
	"Empleaido-Core/internal/observability/metrics"
	"Empleaido-Core/internal/onboarding"
	"Empleaido-Core/internal/skill"
	"Empleaido-Core/pkg/logger"
)

// Dependencies 汇总 API 层依赖的服务。除 Onboarding、Execution、Gate 与 Registry 外均可为空。
type Dependencies struct {
	Onboarding *onboarding.Service
	Execution  *execution.Service
	Gate       *gate.Gate
	Registry   *skill.Registry
	Audit      audit.Reader
	Life       life.Store
	Metrics    *metrics.Metrics
	Alerts     *alerting.Reporter
	Health     func(ctx context.Context) error
}

// Server 负责暴露 REST 接口：激活、消息、技能准入与执行、确认与审计查询。
type Server struct {
	addr string
	deps Dependencies
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Dependencies) *Server {
	return &Server{addr: addr, deps: deps}
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "POST /api/v1/activations", "activations_create", s.handleCreateActivation)
	s.handle(mux, "GET /api/v1/activations/{id}", "activations_get", s.handleGetActivation)
	s.handle(mux, "GET /api/v1/activations/{id}/stats", "activations_stats", s.handleActivationStats)
	s.handle(mux, "PUT /api/v1/activations/{id}/preferences", "activations_preferences", s.handleUpdatePreferences)
	s.handle(mux, "POST /api/v1/messages", "messages", s.handleMessage)
	s.handle(mux, "GET /api/v1/skills", "skills_list", s.handleListSkills)
	s.handle(mux, "POST /api/v1/skills/validate", "skills_validate", s.handleValidateSkill)
	s.handle(mux, "POST /api/v1/skills/execute", "skills_execute", s.handleExecuteSkill)
	s.handle(mux, "GET /api/v1/confirmations/{id}", "confirmations_get", s.handleGetConfirmation)
	s.handle(mux, "POST /api/v1/confirmations/{id}", "confirmations_resolve", s.handleResolveConfirmation)
	s.handle(mux, "GET /api/v1/audit", "audit_list", s.handleListAudit)
	s.handle(mux, "GET /healthz", "healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
	return withRequestID(mux)
}

func (s *Server) handle(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.deps.Metrics != nil {
		h = s.deps.Metrics.Middleware(name, h)
	}
	mux.Handle(pattern, h)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Named("api").Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

// RequestIDHeader 是请求追踪标识所在的头部。
const RequestIDHeader = "X-Request-ID"

// withRequestID 为每个请求分配追踪标识，并放入上下文 logger。
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := logger.WithAttrs(r.Context(), slog.String("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
