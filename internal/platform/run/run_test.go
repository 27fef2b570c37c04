package run

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRun_ExitCodes(t *testing.T) {
	r := New(zap.NewNop())
	ctx := context.Background()

	if code := r.run(ctx, func(context.Context) error { return nil }); code != 0 {
		t.Fatalf("expected 0 for nil error, got %d", code)
	}
	if code := r.run(ctx, func(context.Context) error { return http.ErrServerClosed }); code != 0 {
		t.Fatalf("expected 0 for ErrServerClosed, got %d", code)
	}
	if code := r.run(ctx, func(context.Context) error { return errors.New("boom") }); code != 1 {
		t.Fatalf("expected 1 for failure, got %d", code)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	r := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)
	code := r.run(ctx, func(context.Context) error {
		<-block
		return nil
	})
	if code != 0 {
		t.Fatalf("expected 0 on signal, got %d", code)
	}
}

func TestGraceful_RunsAllHooks(t *testing.T) {
	r := New(zap.NewNop())
	var calls []string
	r.Graceful(
		func(context.Context) error { calls = append(calls, "a"); return errors.New("a failed") },
		func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected a deadline on the hook context")
			}
			calls = append(calls, "b")
			return nil
		},
	)
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("expected hooks a then b, got %v", calls)
	}
}

func TestGraceful_ShutdownTimeout(t *testing.T) {
	r := New(zap.NewNop())
	r.ShutdownTimeout = 50 * time.Millisecond
	r.Graceful(func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		if !ok || time.Until(deadline) > r.ShutdownTimeout {
			t.Errorf("deadline %v exceeds the configured timeout", deadline)
		}
		return nil
	})
}
