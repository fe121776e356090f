package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapKeepsCodeAndCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(CodeStorageFailure, cause, "写入失败")

	if CodeOf(err) != CodeStorageFailure {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if !RetryableError(err) {
		t.Fatalf("storage failures should be retryable by default")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !stdErrors.Is(wrapped, New(CodeStorageFailure, "")) {
		t.Fatalf("errors.Is should match on code through wrapping")
	}
}

func TestRegisterOverridesAttributes(t *testing.T) {
	const code Code = "TEST_CUSTOM_CODE"
	Register(code, Attributes{Message: "custom", Severity: SeverityCritical, Retryable: true})

	err := New(code, "")
	if err.Message() != "custom" {
		t.Fatalf("expected default message from registry, got %q", err.Message())
	}
	if err.Severity() != SeverityCritical || !err.Retryable() {
		t.Fatalf("unexpected attributes: %s retryable=%v", err.Severity(), err.Retryable())
	}
	if New(code, "", WithRetryable(false)).Retryable() {
		t.Fatalf("option should override registry")
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	if CodeOf(fmt.Errorf("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
	if AttributesOf("NOPE").Message != "unknown error" {
		t.Fatalf("unregistered code should fall back to UNKNOWN attributes")
	}
}

func TestHasCodeSearchesWholeChain(t *testing.T) {
	inner := New(CodeRateLimited, "quota")
	outer := Wrap(CodeUpstreamFailure, fmt.Errorf("router: %w", inner), "route failed")

	if CodeOf(outer) != CodeUpstreamFailure {
		t.Fatalf("CodeOf must report the outermost code, got %s", CodeOf(outer))
	}
	if !HasCode(outer, CodeRateLimited) || !HasCode(outer, CodeUpstreamFailure) {
		t.Fatalf("HasCode should find both codes in the chain")
	}
	if HasCode(outer, CodeTimeout) || HasCode(nil, CodeRateLimited) {
		t.Fatalf("unexpected match")
	}
}

func TestLogAttrs(t *testing.T) {
	if LogAttrs(nil) != nil {
		t.Fatalf("nil error must produce no attrs")
	}
	if got := LogAttrs(stdErrors.New("plain")); len(got) != 1 {
		t.Fatalf("plain errors only carry the message, got %v", got)
	}

	err := New(CodeStorageFailure, "写入失败", WithMetadata("table", "activations"), WithMetadata("op", "save"))
	got := fmt.Sprint(LogAttrs(err))
	for _, want := range []string{"code=STORAGE_FAILURE", "severity=critical", "retryable=true", "metadata=[op=save table=activations]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %s", want, got)
		}
	}
}
