package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/vm-relay/internal/relay"
	"github.com/labstack/echo/v4"
)

type staticStatus struct {
	pass    relay.Pass
	started time.Time
}

func (s staticStatus) LastPass() relay.Pass { return s.pass }

func (s staticStatus) Running() (time.Time, bool) { return s.started, !s.started.IsZero() }

func TestHealth(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		pass    relay.Pass
		started time.Time
		code    int
		status  string
	}{
		{"starting", relay.Pass{}, time.Time{}, http.StatusOK, "starting"},
		{"first pass running", relay.Pass{}, now.Add(-time.Hour), http.StatusOK, "starting"},
		{"ok", relay.Pass{Finished: now.Add(-time.Minute), Summary: relay.Summary{Acked: 2}}, time.Time{}, http.StatusOK, "ok"},
		{"failing", relay.Pass{Finished: now, Err: "authenticate: invalid_grant"}, time.Time{}, http.StatusServiceUnavailable, "failing"},
		{"stale", relay.Pass{Finished: now.Add(-time.Hour)}, time.Time{}, http.StatusServiceUnavailable, "stale"},
		{"long pass running", relay.Pass{Finished: now.Add(-time.Hour)}, now.Add(-50 * time.Minute), http.StatusOK, "running"},
		{"running after failure", relay.Pass{Finished: now.Add(-time.Hour), Err: "list unread voicemails: 503"}, now.Add(-time.Minute), http.StatusServiceUnavailable, "failing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := healthHandler(staticStatus{pass: tt.pass, started: tt.started}, 10*time.Minute, func() time.Time { return now })
			if err := h(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.status {
				t.Errorf("status = %v, want %q", body["status"], tt.status)
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	s := NewServer(staticStatus{}, time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}
