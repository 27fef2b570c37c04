package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(cfg ...RouterConfig) chi.Router {
	r := chi.NewRouter()
	SetupRouter(r, cfg...)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	r.Get("/rid", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestIDFromContext(r.Context())))
	})
	return r
}

func TestRouter_Endpoints(t *testing.T) {
	down := RouterConfig{ReadyFunc: func() error { return errors.New("storage down") }}

	cases := []struct {
		name     string
		cfg      []RouterConfig
		path     string
		wantCode int
		wantBody string
	}{
		{"healthz", nil, "/healthz", http.StatusOK, "ok"},
		{"readyz without probe", nil, "/readyz", http.StatusOK, "ready"},
		{"readyz probe ok", []RouterConfig{{ReadyFunc: func() error { return nil }}}, "/readyz", http.StatusOK, "ready"},
		{"readyz probe failing", []RouterConfig{down}, "/readyz", http.StatusServiceUnavailable, "NOT_READY"},
		{"panic recovered", nil, "/boom", http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newTestRouter(tc.cfg...).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tc.wantBody) {
				t.Fatalf("body %q does not contain %q", rr.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	cases := []struct {
		name   string
		header string
		keep   bool
	}{
		{"caller id kept", "rid-123", true},
		{"missing id minted", "", false},
		{"id with spaces replaced", "two words", false},
		{"oversized id replaced", strings.Repeat("x", maxRequestIDLen+1), false},
	}
	r := newTestRouter()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rid", nil)
			if tc.header != "" {
				req.Header.Set(RequestIDHeader, tc.header)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			got := rr.Header().Get(RequestIDHeader)
			if got == "" || got != rr.Body.String() {
				t.Fatalf("header %q and context %q disagree", got, rr.Body.String())
			}
			if (got == tc.header) != tc.keep {
				t.Fatalf("request id = %q, keep = %v", got, tc.keep)
			}
		})
	}
}

func TestAccessLog_WarnsOnServerError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := newTestRouter(RouterConfig{Logger: zap.New(core)})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 access log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.DebugLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("levels = %v, %v", entries[0].Level, entries[1].Level)
	}
	if got := entries[1].ContextMap()["status"]; got != int64(http.StatusInternalServerError) {
		t.Fatalf("status field = %v", got)
	}
}

func TestCORS(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://movieon.app")
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://movieon.app")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://movieon.app" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestParseCORSOrigins(t *testing.T) {
	cases := map[string][]string{
		"":                                              {"*"},
		" , ":                                           {"*"},
		"https://movieon.app":                           {"https://movieon.app"},
		"https://movieon.app , https://www.movieon.app": {"https://movieon.app", "https://www.movieon.app"},
	}
	for raw, want := range cases {
		got := parseCORSOrigins(raw)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("parseCORSOrigins(%q) = %v, want %v", raw, got, want)
		}
	}
}
