package httpserver

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0", ServiceName: "watch"})
	if s.HTTP.ReadHeaderTimeout != defaultReadHeaderTimeout {
		t.Fatalf("read header timeout = %v", s.HTTP.ReadHeaderTimeout)
	}
	if s.HTTP.IdleTimeout != defaultIdleTimeout {
		t.Fatalf("idle timeout = %v", s.HTTP.IdleTimeout)
	}
	if s.HTTP.WriteTimeout != 0 {
		t.Fatalf("write timeout = %v, want none", s.HTTP.WriteTimeout)
	}
	if s.HTTP.Handler == nil {
		t.Fatal("expected a fallback handler")
	}
}

func TestStart_ShutdownReturnsNil(t *testing.T) {
	s := New(Options{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()})
	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}
}
