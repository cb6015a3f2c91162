package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"rate limit", ErrRateLimited, ErrorKindRateLimit},
		{"wrapped rate limit", fmt.Errorf("fetch quote: %w", ErrRateLimited), ErrorKindRateLimit},
		{"dust", ErrNoRoute, ErrorKindDust},
		{"wrapped dust", fmt.Errorf("quote SOL->token: %w", ErrNoRoute), ErrorKindDust},
		{"plain error", errors.New("connection reset"), ErrorKindTransient},
		{"wrapped plain", fmt.Errorf("send tx: %w", errors.New("timeout")), ErrorKindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRateLimit_Wrapped(t *testing.T) {
	err := fmt.Errorf("attempt 2: %w", fmt.Errorf("quote api: %w", ErrRateLimited))
	if !IsRateLimit(err) {
		t.Errorf("IsRateLimit should see through wrapping, got false for %v", err)
	}
	if IsRateLimit(errors.New("rate limited by execution api")) {
		t.Error("IsRateLimit should compare identity, not message text")
	}
}

func TestIsHalted(t *testing.T) {
	if !IsHalted(fmt.Errorf("worker 3: %w", ErrHalted)) {
		t.Error("IsHalted should match wrapped ErrHalted")
	}
	if IsHalted(ErrStopped) {
		t.Error("ErrStopped must not classify as halted")
	}
}
