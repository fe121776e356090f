package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithAttrs 返回携带额外日志字段的上下文，后续 FromContext 会自动带上这些字段。
func WithAttrs(ctx context.Context, attrs ...any) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, FromContext(ctx).With(attrs...))
}

// FromContext 返回上下文中的 logger，没有时返回全局 logger。
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return L()
}

// Component 在上下文 logger 的基础上标记组件名。
func Component(ctx context.Context, name string) *slog.Logger {
	return FromContext(ctx).With(slog.String("component", name))
}
