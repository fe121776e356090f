package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	xerrors "Empleaido-Core/internal/errors"
)

type flakyClient struct {
	failures int
	calls    int
}

func (f *flakyClient) Complete(context.Context, string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("503 service unavailable")
	}
	return "ok", nil
}

func (f *flakyClient) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("503 service unavailable")
	}
	return []float32{1, 0}, nil
}

func TestRetryingRecovers(t *testing.T) {
	inner := &flakyClient{failures: 2}
	c := WithRetry(inner, "fake", 2, time.Millisecond)

	out, err := c.Complete(context.Background(), "hola")
	if err != nil || out != "ok" {
		t.Fatalf("expected recovery, got %q %v", out, err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingExhausted(t *testing.T) {
	inner := &flakyClient{failures: 10}
	c := WithRetry(inner, "fake", 1, 0)

	_, err := c.Embed(context.Background(), "hola")
	if xerrors.CodeOf(err) != xerrors.CodeUpstreamFailure || !xerrors.RetryableError(err) {
		t.Fatalf("expected retryable UPSTREAM_FAILURE, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", inner.calls)
	}
}

func TestRetryingStopsOnCancel(t *testing.T) {
	inner := &flakyClient{failures: 10}
	c := WithRetry(inner, "fake", 5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Complete(ctx, "hola"); err == nil {
		t.Fatalf("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("cancelled context must stop retries, got %d calls", inner.calls)
	}
}

func TestRetryingWithoutProvider(t *testing.T) {
	var c *Retrying
	_, err := c.Complete(context.Background(), "hola")
	if !errors.Is(err, ErrNotConfigured) || xerrors.RetryableError(err) {
		t.Fatalf("expected non-retryable ErrNotConfigured, got %v", err)
	}
}
