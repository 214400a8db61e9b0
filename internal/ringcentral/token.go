package ringcentral

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	tokenPath      = "/restapi/oauth/token"

	// refresh this long before the provider's expiry to avoid racing it
	earlyExpiry = 60 * time.Second
)

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// jwtSource exchanges a pre-signed JWT assertion for a bearer token.
// Wrap it in oauth2.ReuseTokenSourceWithExpiry; it performs a network call every time.
type jwtSource struct {
	ctx          context.Context
	http         *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	assertion    string
	now          func() time.Time
}

func (s *jwtSource) Token() (*oauth2.Token, error) {
	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {s.assertion},
	}
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := s.http.Do(req)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("token request: %w", err)}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, &AuthError{Status: res.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)

	if res.StatusCode/100 != 2 {
		return nil, &AuthError{Status: res.StatusCode, Code: tr.Error, Description: tr.ErrorDescription}
	}
	if tr.AccessToken == "" {
		return nil, &AuthError{Status: res.StatusCode, Code: "invalid_response", Description: "no access_token in response"}
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		tok.Expiry = s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, nil
}
