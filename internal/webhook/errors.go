package webhook

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrWebhookUnavailable is returned without calling the endpoint while the breaker is open.
var ErrWebhookUnavailable = errors.New("webhook unavailable")

var errInvalidPayload = errors.New("invalid payload")

// DeliveryError reports a post the webhook did not accept. The message stays unread.
type DeliveryError struct {
	Status int    // HTTP status, 0 when no response was received
	Body   string // response excerpt
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook: delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("webhook: delivery failed: status=%d body=%q", e.Status, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Temporary reports whether the failure points at the endpoint rather than at the
// payload: no response at all, 429, or 5xx. Only these count toward the breaker.
func (e *DeliveryError) Temporary() bool {
	switch {
	case e.Status == 0:
		return !errors.Is(e.Err, errInvalidPayload)
	case e.Status == http.StatusTooManyRequests:
		return true
	default:
		return e.Status >= 500
	}
}
