// Package ringcentral is a small client for the RingCentral message store:
// JWT-assertion auth, unread voicemail listing, transcription download and mark-read.
package ringcentral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/vm-relay/internal/logger"
	"github.com/jmehdipour/vm-relay/internal/model"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	maxResponseBytes = 10 << 20 // 10 MiB
	maxErrorBody     = 512

	messageTypeVoicemail = "VoiceMail"
)

type Config struct {
	Server       string // e.g. https://platform.ringcentral.com
	ClientID     string
	ClientSecret string
	JWT          string
	AccountID    string // "~" for the authorized account
	ExtensionID  string

	PerPage  int
	MaxPages int
	Timeout  time.Duration

	TranscriptionAttempts int           // reads of the record while waiting for the transcript
	TranscriptionInterval time.Duration // wait between those reads

	// Base is the transport for both token and API calls; http.DefaultTransport when nil.
	Base http.RoundTripper
}

type Client struct {
	server    string
	account   string
	extension string

	perPage  int
	maxPages int

	transcriptionAttempts int
	transcriptionInterval time.Duration

	ts   oauth2.TokenSource
	http *http.Client
}

// New builds a client. ctx bounds token exchanges for the lifetime of the client,
// the same way oauth2.Config.TokenSource does.
func New(ctx context.Context, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.AccountID == "" {
		cfg.AccountID = "~"
	}
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	server := strings.TrimRight(cfg.Server, "/")

	src := &jwtSource{
		ctx:          ctx,
		http:         &http.Client{Transport: base, Timeout: cfg.Timeout},
		tokenURL:     server + tokenPath,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		assertion:    cfg.JWT,
		now:          time.Now,
	}
	ts := oauth2.ReuseTokenSourceWithExpiry(nil, src, earlyExpiry)

	return &Client{
		server:                server,
		account:               cfg.AccountID,
		extension:             cfg.ExtensionID,
		perPage:               cfg.PerPage,
		maxPages:              cfg.MaxPages,
		transcriptionAttempts: cfg.TranscriptionAttempts,
		transcriptionInterval: cfg.TranscriptionInterval,
		ts:                    ts,
		http: &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: base},
			Timeout:   cfg.Timeout,
		},
	}
}

func (c *Client) ExtensionID() string { return c.extension }

// Authenticate returns a valid bearer token, exchanging the JWT assertion when the
// cached token is missing or about to expire.
func (c *Client) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tok, err := c.ts.Token()
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, &AuthError{Err: err}
	}
	return tok, nil
}

type listResponse struct {
	Records []model.Voicemail `json:"records"`
	Paging  struct {
		Page       int `json:"page"`
		TotalPages int `json:"totalPages"`
		PerPage    int `json:"perPage"`
	} `json:"paging"`
}

// ListUnreadVoicemails walks the message-store pages for unread voicemails created
// after since. It stops at the last page or after MaxPages pages.
func (c *Client) ListUnreadVoicemails(ctx context.Context, since time.Time) ([]model.Voicemail, error) {
	var all []model.Voicemail

	for page := 1; page <= c.maxPages; page++ {
		q := url.Values{
			"messageType": {messageTypeVoicemail},
			"readStatus":  {model.ReadStatusUnread.String()},
			"perPage":     {strconv.Itoa(c.perPage)},
			"page":        {strconv.Itoa(page)},
		}
		if !since.IsZero() {
			q.Set("dateFrom", since.UTC().Format(time.RFC3339))
		}

		var res listResponse
		if err := c.do(ctx, "list", http.MethodGet, c.storePath(""), q, nil, &res); err != nil {
			return nil, err
		}
		all = append(all, res.Records...)

		total := res.Paging.TotalPages
		if total <= 0 {
			total = 1
		}
		if page >= total {
			break
		}
		if page == c.maxPages {
			logger.Log.Warn("ringcentral: page cap reached, remaining unread voicemails wait for the next pass",
				zap.Int("max_pages", c.maxPages), zap.Int("total_pages", total))
		}
	}

	return all, nil
}

// GetMessage fetches the full record; list entries can lack caller or attachment data.
func (c *Client) GetMessage(ctx context.Context, id model.MessageID) (model.Voicemail, error) {
	var v model.Voicemail
	if err := c.do(ctx, "get", http.MethodGet, c.storePath(id), nil, nil, &v); err != nil {
		return model.Voicemail{}, err
	}
	return v, nil
}

// Transcription returns the transcript text of v, or "" when none is available.
// The provider attaches the transcript some time after the voicemail record appears,
// so the record is re-read up to TranscriptionAttempts times before giving up.
// Errors are returned immediately.
func (c *Client) Transcription(ctx context.Context, v model.Voicemail) (string, error) {
	for attempt := 1; ; attempt++ {
		if att, ok := v.TranscriptionAttachment(); ok {
			return c.content(ctx, att.URI)
		}
		if attempt >= c.transcriptionAttempts {
			return "", nil
		}

		timer := time.NewTimer(c.transcriptionInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}

		next, err := c.GetMessage(ctx, v.ID)
		if err != nil {
			return "", err
		}
		v = v.Merge(next)
	}
}

// MarkRead sets readStatus=Read on the message.
func (c *Client) MarkRead(ctx context.Context, id model.MessageID) error {
	body := map[string]string{"readStatus": model.ReadStatusRead.String()}
	return c.do(ctx, "mark-read", http.MethodPatch, c.storePath(id), nil, body, nil)
}

func (c *Client) storePath(id model.MessageID) string {
	p := fmt.Sprintf("/restapi/v1.0/account/%s/extension/%s/message-store",
		url.PathEscape(c.account), url.PathEscape(c.extension))
	if id != "" {
		p += "/" + url.PathEscape(id.String())
	}
	return p
}

// content downloads an attachment body as text. uri may be absolute or server-relative.
func (c *Client) content(ctx context.Context, uri string) (string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.server + uri
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &APIError{Op: "transcription", Err: err}
	}

	b, err := c.send(req, "transcription")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	target := c.server + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &APIError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	b, err := c.send(req, op)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &APIError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) send(req *http.Request, op string) ([]byte, error) {
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		// token exchange failures surface through oauth2.Transport
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, &APIError{Op: op, Err: err}
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, &APIError{Op: op, Status: res.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	logger.Log.Debug("ringcentral: request",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return nil, &AuthError{Status: res.StatusCode, Description: excerpt(b)}
	case res.StatusCode/100 != 2:
		return nil, &APIError{Op: op, Status: res.StatusCode, Body: excerpt(b)}
	}
	return b, nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
