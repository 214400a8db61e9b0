package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmehdipour/vm-relay/internal/webhook"
)

func TestRunOnceRejectedPayloadsDoNotBlockLaterMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "Rejected Caller") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"embeds": ["0"]}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r, p, _, _ := newFixture(
		vm("1", "Rejected Caller", "2026-03-09T09:00:00Z"),
		vm("2", "Rejected Caller", "2026-03-09T10:00:00Z"),
		vm("3", "Rejected Caller", "2026-03-09T11:00:00Z"),
		vm("4", "Good Caller", "2026-03-09T12:00:00Z"),
	)
	r.Poster = webhook.NewHTTPPoster(srv.URL, time.Second, 3, time.Hour)

	sum, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}

	if sum.Found != 4 || sum.Posted != 1 || sum.Acked != 1 || sum.Failed != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if len(p.marked) != 1 || p.marked[0] != "4" {
		t.Errorf("marked = %v, want [4]", p.marked)
	}
}

func TestRunOnceUnreachableWebhookOpensBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r, p, _, _ := newFixture(
		vm("1", "Alice", "2026-03-09T09:00:00Z"),
		vm("2", "Bob", "2026-03-09T10:00:00Z"),
		vm("3", "Carol", "2026-03-09T11:00:00Z"),
		vm("4", "Dave", "2026-03-09T12:00:00Z"),
	)
	r.Poster = webhook.NewHTTPPoster(srv.URL, time.Second, 2, time.Hour)

	sum, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}

	if hits.Load() != 2 {
		t.Errorf("webhook hits = %d, want 2", hits.Load())
	}
	if sum.Failed != 4 || len(p.marked) != 0 {
		t.Errorf("summary = %+v, marked = %v", sum, p.marked)
	}
}
