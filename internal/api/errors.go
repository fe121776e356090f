package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"Empleaido-Core/internal/activation"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/execution"
	"Empleaido-Core/internal/gate"
	"Empleaido-Core/internal/life"
	"Empleaido-Core/internal/skill"
	"Empleaido-Core/pkg/logger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

var statusByCode = map[xerrors.Code]int{
	xerrors.CodeInvalidArgument:        http.StatusBadRequest,
	gate.CodeInvalidInput:              http.StatusBadRequest,
	xerrors.CodeNotFound:               http.StatusNotFound,
	activation.CodeActivationNotFound:  http.StatusNotFound,
	execution.CodeConfirmationNotFound: http.StatusNotFound,
	skill.CodeUnknownAgent:             http.StatusNotFound,
	skill.CodeSkillNotFound:            http.StatusNotFound,
	skill.CodeSkillLocked:              http.StatusForbidden,
	xerrors.CodeConflict:               http.StatusConflict,
	activation.CodeActivationConflict:  http.StatusConflict,
	activation.CodeActivationExists:    http.StatusConflict,
	execution.CodeConfirmationResolved: http.StatusConflict,
	execution.CodeAgentNotReady:        http.StatusConflict,
	execution.CodeConfirmationExpired:  http.StatusGone,
	xerrors.CodeRateLimited:            http.StatusTooManyRequests,
	life.CodeInsufficientEnergy:        http.StatusServiceUnavailable,
	xerrors.CodeInitializationFailure:  http.StatusServiceUnavailable,
	xerrors.CodeUpstreamFailure:        http.StatusBadGateway,
	xerrors.CodeTimeout:                http.StatusGatewayTimeout,
	skill.CodeRegistryInvalid:          http.StatusInternalServerError,
}

// statusFor 把统一错误码映射为 HTTP 状态码，未知错误返回 500。
func statusFor(err error) int {
	if status, ok := statusByCode[xerrors.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// verdictStatus 决定拒绝判定的 HTTP 状态码。
func verdictStatus(code gate.ReasonCode) int {
	switch code {
	case gate.ReasonUnknownAgent, gate.ReasonSkillNotFound:
		return http.StatusNotFound
	case gate.ReasonRequiresUnlock:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status := statusFor(err)
	detail := errorDetail{Code: string(xerrors.CodeOf(err)), Message: err.Error()}
	if e, ok := xerrors.From(err); ok {
		detail.Message = e.Message()
		detail.Retryable = e.Retryable()
		detail.Metadata = e.Metadata()
	}
	if status >= http.StatusInternalServerError {
		attrs := append([]any{slog.String("operation", operation), slog.Int("status", status)}, xerrors.LogAttrs(err)...)
		logger.Component(ctx, "api").Error("请求处理失败", attrs...)
	}
	s.deps.Alerts.Report(ctx, operation, err)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "60")
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}
