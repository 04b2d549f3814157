package mcp

import (
	"testing"
	"time"
)

func TestComputeBackoffWithRandNoJitterOnFirstAttempt(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0.1}
	got := computeBackoffWithRand(policy, 1, 0)
	if got != 100*time.Millisecond {
		t.Fatalf("expected 100ms, got %v", got)
	}
}

func TestComputeBackoffWithRandGrowsExponentially(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0}
	attempt3 := computeBackoffWithRand(policy, 3, 0)
	if attempt3 != 400*time.Millisecond {
		t.Fatalf("expected 400ms at attempt 3, got %v", attempt3)
	}
}

func TestComputeBackoffClampsToMax(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 1000, MaxMs: 2000, Factor: 10, Jitter: 0}
	got := computeBackoffWithRand(policy, 10, 0)
	if got != 2000*time.Millisecond {
		t.Fatalf("expected clamp to 2000ms, got %v", got)
	}
}
