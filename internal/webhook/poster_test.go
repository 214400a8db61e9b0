package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmehdipour/vm-relay/internal/model"
)

func samplePayload() model.Payload {
	return model.Payload{
		Content: "New voicemail",
		Embeds: []model.Embed{{
			Title: "Voicemail received",
			Fields: []model.Field{
				{Name: "Caller", Value: "Jane", Inline: true},
				{Name: "Transcription", Value: "call me", Inline: false},
			},
		}},
	}
}

func TestPostSendsJSON(t *testing.T) {
	var got model.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/webhooks/1/secret-token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewHTTPPoster(srv.URL+"/api/webhooks/1/secret-token", time.Second, 3, time.Minute)
	if err := p.Post(context.Background(), samplePayload()); err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if v, _ := got.FieldValue("Caller"); v != "Jane" {
		t.Errorf("Caller = %q, want %q", v, "Jane")
	}
	if got.Content != "New voicemail" {
		t.Errorf("Content = %q", got.Content)
	}
}

func TestPostNon2xxIsDeliveryError(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"message": "nope"}`)
		}))

		err := NewHTTPPoster(srv.URL, time.Second, 3, time.Minute).Post(context.Background(), samplePayload())
		srv.Close()

		var de *DeliveryError
		if !errors.As(err, &de) {
			t.Fatalf("status %d: error = %v, want *DeliveryError", status, err)
		}
		if de.Status != status {
			t.Errorf("Status = %d, want %d", de.Status, status)
		}
		if !strings.Contains(de.Body, "nope") {
			t.Errorf("Body = %q", de.Body)
		}
	}
}

func TestPostNetworkErrorHidesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL + "/api/webhooks/1/secret-token"
	srv.Close()

	err := NewHTTPPoster(target, time.Second, 3, time.Minute).Post(context.Background(), samplePayload())
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DeliveryError", err)
	}
	if de.Status != 0 {
		t.Errorf("Status = %d, want 0", de.Status)
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("error leaks webhook token: %v", err)
	}
}

func TestPostBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPPoster(srv.URL, time.Second, 2, time.Hour)
	for i := 0; i < 4; i++ {
		_ = p.Post(context.Background(), samplePayload())
	}

	if hits.Load() != 2 {
		t.Errorf("endpoint hits = %d, want 2", hits.Load())
	}
	err := p.Post(context.Background(), samplePayload())
	if !errors.Is(err, ErrWebhookUnavailable) {
		t.Errorf("Post() = %v, want ErrWebhookUnavailable", err)
	}
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Errorf("breaker error is not a *DeliveryError")
	}
}

func TestBreakerProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	if !b.TryAcquire() {
		t.Fatal("closed breaker refused")
	}
	b.OnFailure()
	if !b.Open() {
		t.Fatal("breaker not open after threshold")
	}
	if b.TryAcquire() {
		t.Fatal("open breaker allowed a post")
	}

	now = now.Add(2 * time.Minute)
	if !b.TryAcquire() {
		t.Fatal("probe refused after openFor")
	}
	if b.TryAcquire() {
		t.Fatal("second probe allowed while first in flight")
	}
	b.OnSuccess()
	if b.Open() || !b.TryAcquire() {
		t.Fatal("breaker not closed after successful probe")
	}
}

func TestPostRejectedPayloadsKeepBreakerClosed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPPoster(srv.URL, time.Second, 2, time.Hour)
	for i := 0; i < 5; i++ {
		err := p.Post(context.Background(), samplePayload())
		if errors.Is(err, ErrWebhookUnavailable) {
			t.Fatalf("post %d refused by breaker after 400s", i+1)
		}
	}
	if hits.Load() != 5 {
		t.Errorf("endpoint hits = %d, want 5", hits.Load())
	}
	if p.br.Open() {
		t.Error("breaker open after payload rejections")
	}
}

func TestPostRejectionResetsFailureCount(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	p := NewHTTPPoster(srv.URL, time.Second, 2, time.Hour)
	_ = p.Post(context.Background(), samplePayload()) // 503

	status.Store(http.StatusBadRequest)
	_ = p.Post(context.Background(), samplePayload()) // endpoint answered

	status.Store(http.StatusServiceUnavailable)
	_ = p.Post(context.Background(), samplePayload()) // 503, count restarts at 1

	if p.br.Open() {
		t.Error("breaker open although the endpoint answered between the two 503s")
	}
}

func TestDeliveryErrorTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  *DeliveryError
		want bool
	}{
		{"no response", &DeliveryError{Err: errors.New("dial tcp: connection refused")}, true},
		{"rate limited", &DeliveryError{Status: http.StatusTooManyRequests}, true},
		{"server error", &DeliveryError{Status: http.StatusBadGateway}, true},
		{"bad request", &DeliveryError{Status: http.StatusBadRequest}, false},
		{"not found", &DeliveryError{Status: http.StatusNotFound}, false},
		{"unencodable payload", &DeliveryError{Err: errInvalidPayload}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Temporary(); got != tt.want {
				t.Errorf("Temporary() = %v, want %v", got, tt.want)
			}
		})
	}
}
