package audit

import (
	"context"
	"log/slog"

	"Empleaido-Core/pkg/logger"
)

// LogSink 将审计事件写入 logger.Audit()。
type LogSink struct {
	log *slog.Logger
}

// NewLogSink 创建 LogSink。log 为空时使用全局审计日志。
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Append 实现 Sink 接口。
func (s *LogSink) Append(ctx context.Context, event Event) error {
	event.Normalize()
	log := s.log
	if log == nil {
		log = logger.Audit()
	}
	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("kind", string(event.Kind)),
		slog.String("agent_id", event.AgentID),
		slog.String("user_id", event.UserID),
		slog.String("verdict", event.Verdict),
	}
	if event.ActivationID != "" {
		attrs = append(attrs, slog.String("activation_id", event.ActivationID))
	}
	if event.Skill != "" {
		attrs = append(attrs, slog.String("skill", event.Skill))
	}
	if event.ReasonCode != "" {
		attrs = append(attrs, slog.String("reason_code", event.ReasonCode))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", event.Outcome))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}
	if len(event.Input) > 0 {
		attrs = append(attrs, slog.Any("input", event.Input))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "审计事件", attrs...)
	return nil
}

var _ Sink = (*LogSink)(nil)
