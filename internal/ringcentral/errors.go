package ringcentral

import (
	"errors"
	"fmt"
)

// AuthError reports a failed token exchange or a token the API refused.
// It is fatal for the pass: every following call would fail the same way.
type AuthError struct {
	Status      int    // HTTP status, 0 on transport failure
	Code        string // OAuth error code, e.g. invalid_grant
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("ringcentral: auth failed: %v", e.Err)
	case e.Code != "":
		return fmt.Sprintf("ringcentral: auth failed: status=%d %s: %s", e.Status, e.Code, e.Description)
	default:
		return fmt.Sprintf("ringcentral: auth failed: status=%d", e.Status)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError reports a failed message-store call (network, permission, not found).
type APIError struct {
	Op     string // list | get | mark-read | transcription
	Status int    // HTTP status, 0 on transport failure
	Body   string // response excerpt
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ringcentral: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ringcentral: %s: status=%d body=%q", e.Op, e.Status, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsAuth reports whether err carries an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
