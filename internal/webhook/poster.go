// Package webhook delivers notification payloads to a chat webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/vm-relay/internal/logger"
	"github.com/jmehdipour/vm-relay/internal/model"
	"go.uber.org/zap"
)

const maxErrorBody = 512

type Poster interface {
	Post(ctx context.Context, p model.Payload) error
}

// HTTPPoster posts JSON payloads to a fixed URL. The URL embeds the webhook secret,
// so it never appears in returned errors.
type HTTPPoster struct {
	url    string
	client *http.Client
	br     *Breaker
}

func NewHTTPPoster(webhookURL string, timeout time.Duration, failThreshold int, openFor time.Duration) *HTTPPoster {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openFor <= 0 {
		openFor = time.Minute
	}

	return &HTTPPoster{
		url:    webhookURL,
		client: &http.Client{Timeout: timeout},
		br:     NewBreaker(failThreshold, openFor),
	}
}

func (p *HTTPPoster) Post(ctx context.Context, payload model.Payload) error {
	if !p.br.TryAcquire() {
		return &DeliveryError{Err: ErrWebhookUnavailable}
	}

	err := p.post(ctx, payload)

	var de *DeliveryError
	switch {
	case err == nil:
		p.br.OnSuccess()
	case errors.As(err, &de) && de.Temporary():
		p.br.OnFailure()
		if p.br.Open() {
			logger.Log.Warn("webhook: breaker open, posts paused",
				zap.Int("status", de.Status),
				zap.Duration("open_for", p.br.openFor),
			)
		}
	default:
		// the endpoint answered; only this payload was rejected
		p.br.OnSuccess()
	}

	return err
}

func (p *HTTPPoster) post(ctx context.Context, payload model.Payload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("%w: %v", errInvalidPayload, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(b))
	if err != nil {
		return &DeliveryError{Err: errors.New("invalid webhook url")}
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: stripURL(err)}
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &DeliveryError{Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))

	return nil
}

// stripURL drops the request URL from transport errors.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", strings.ToLower(uerr.Op), uerr.Err)
	}
	return err
}
