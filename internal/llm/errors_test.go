package llm

import (
	"errors"
	"testing"
)

func TestClassifyErrorFromText(t *testing.T) {
	cases := map[string]FailoverReason{
		"rate limit exceeded, try again":  FailoverRateLimit,
		"429 too many requests":           FailoverRateLimit,
		"request timed out":               FailoverTimeout,
		"context deadline exceeded":       FailoverTimeout,
		"unauthorized: invalid api key":   FailoverAuth,
		"insufficient quota on account":   FailoverBilling,
		"content policy violation":        FailoverContentFilter,
		"model not found: gpt-5":          FailoverModelUnavailable,
		"internal server error occurred":  FailoverServerError,
		"something entirely unexpected":   FailoverUnknown,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Errorf("ClassifyError(%q) = %s, want %s", msg, got, want)
		}
	}
}

func TestClassifyErrorNilIsUnknown(t *testing.T) {
	if got := ClassifyError(nil); got != FailoverUnknown {
		t.Fatalf("expected FailoverUnknown for nil, got %s", got)
	}
}

func TestFailoverReasonIsRetryable(t *testing.T) {
	retryable := []FailoverReason{FailoverRateLimit, FailoverTimeout, FailoverServerError}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Errorf("expected %s to be retryable", r)
		}
	}
	notRetryable := []FailoverReason{FailoverAuth, FailoverBilling, FailoverInvalidRequest, FailoverContentFilter, FailoverModelUnavailable, FailoverUnknown}
	for _, r := range notRetryable {
		if r.IsRetryable() {
			t.Errorf("expected %s to not be retryable", r)
		}
	}
}

func TestProviderErrorWithStatusReclassifies(t *testing.T) {
	err := NewProviderError("openai", "gpt-4o", errors.New("boom"))
	err.WithStatus(429)
	if err.Reason != FailoverRateLimit {
		t.Fatalf("expected FailoverRateLimit after WithStatus(429), got %s", err.Reason)
	}
	if !IsRetryable(err) {
		t.Fatal("expected IsRetryable to report true for a rate-limited ProviderError")
	}
}

func TestProviderErrorWithCodeReclassifies(t *testing.T) {
	err := NewProviderError("anthropic", "claude-3-opus", errors.New("boom"))
	err.WithCode("authentication_error")
	if err.Reason != FailoverAuth {
		t.Fatalf("expected FailoverAuth after WithCode, got %s", err.Reason)
	}
}

func TestGetProviderErrorUnwraps(t *testing.T) {
	inner := NewProviderError("openai", "gpt-4o", errors.New("rate limit"))
	wrapped := errors.Join(errors.New("context"), inner)
	got, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatal("expected GetProviderError to find the wrapped ProviderError")
	}
	if got.Reason != FailoverRateLimit {
		t.Fatalf("expected FailoverRateLimit, got %s", got.Reason)
	}
}

func TestIsRetryableFallsBackToTextClassification(t *testing.T) {
	if !IsRetryable(errors.New("503 service unavailable")) {
		t.Fatal("expected a raw 503 error to be classified as retryable")
	}
	if IsRetryable(errors.New("400 bad request")) {
		t.Fatal("expected a raw 400 error to not be retryable")
	}
}
