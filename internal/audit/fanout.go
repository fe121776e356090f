package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/pkg/logger"
)

// Named 给写入端附加名称，便于在错误与日志中定位。
type Named struct {
	Name string
	Sink Sink
	// BestEffort 为 true 时，写入失败只记录日志，不影响调用方。
	BestEffort bool
}

// Fanout 将事件写入多个目标。必需目标写入失败会返回错误。
type Fanout struct {
	sinks []Named
}

// NewFanout 创建 Fanout。
func NewFanout(sinks ...Named) *Fanout {
	set := make([]Named, 0, len(sinks))
	for _, s := range sinks {
		if s.Sink == nil {
			continue
		}
		set = append(set, s)
	}
	return &Fanout{sinks: set}
}

// Append 实现 Sink 接口。
func (f *Fanout) Append(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	event.Normalize()
	var errs []error
	for _, s := range f.sinks {
		err := s.Sink.Append(ctx, event)
		if err == nil {
			continue
		}
		if s.BestEffort {
			logger.Named("audit").Warn("审计目标写入失败", slog.String("sink", s.Name),
				slog.String("event_id", event.ID), slog.Any("error", err))
			continue
		}
		errs = append(errs, fmt.Errorf("sink %s: %w", s.Name, err))
	}
	if len(errs) > 0 {
		return xerrors.Wrap(CodeAuditFailure, errors.Join(errs...), "写入审计事件失败",
			xerrors.WithMetadata("event_id", event.ID))
	}
	return nil
}

// Len 返回目标数量。
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}

// CodeAuditFailure 表示审计记录无法写入。
const CodeAuditFailure xerrors.Code = "AUDIT_FAILURE"

func init() {
	xerrors.Register(CodeAuditFailure, xerrors.Attributes{
		Message:   "audit append failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

var _ Sink = (*Fanout)(nil)
