package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/pkg/logger"
)

// Client 定义了调用大模型的统一接口。
type Client interface {
	// Complete 返回模型对提示词的文本回复。
	Complete(ctx context.Context, prompt string) (string, error)
	// Embed 返回文本的向量表示。
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotConfigured 表示没有配置可用的模型提供方。
var ErrNotConfigured = errors.New("未配置大模型提供方")

// Retrying 在提供方调用失败时按固定退避重试，最终失败统一包装为 UPSTREAM_FAILURE。
type Retrying struct {
	next    Client
	retries int
	backoff time.Duration
	name    string
}

var _ Client = (*Retrying)(nil)

// WithRetry 包装 Client。retries 是首次调用之后的额外尝试次数。
func WithRetry(next Client, name string, retries int, backoff time.Duration) *Retrying {
	if retries < 0 {
		retries = 0
	}
	return &Retrying{next: next, retries: retries, backoff: backoff, name: name}
}

// Complete 实现 Client 接口。
func (r *Retrying) Complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := r.do(ctx, "complete", func(ctx context.Context) error {
		var err error
		out, err = r.next.Complete(ctx, prompt)
		return err
	})
	return out, err
}

// Embed 实现 Client 接口。
func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.do(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = r.next.Embed(ctx, text)
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, op string, call func(context.Context) error) error {
	if r == nil || r.next == nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, ErrNotConfigured, ErrNotConfigured.Error(), xerrors.WithRetryable(false))
	}
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			logger.Named("llm").Warn("大模型调用失败，准备重试",
				slog.String("provider", r.name),
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			if waitErr := sleep(ctx, r.backoff*time.Duration(attempt)); waitErr != nil {
				err = waitErr
				break
			}
		}
		if err = call(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	code := xerrors.CodeUpstreamFailure
	if errors.Is(err, context.DeadlineExceeded) {
		code = xerrors.CodeTimeout
	}
	return xerrors.Wrap(code, err, "大模型调用失败",
		xerrors.WithMetadata("provider", r.name),
		xerrors.WithMetadata("op", op))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
