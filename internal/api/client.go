// Package api is the HTTP client for the P&L backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/personal-pl/plctl/internal/buildinfo"
	"github.com/personal-pl/plctl/internal/logging"
	"github.com/personal-pl/plctl/internal/session"
)

const maxResponseBytes = 16 << 20

// Client calls the backend on behalf of one session.
type Client struct {
	base    *url.URL
	http    *http.Client
	session *session.Session
	log     *slog.Logger
	newID   func() string
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client. Its Jar, if any, should
// be the one the session mirrors its cookie into.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = logging.For(l, logging.ComponentAPI) }
}

// WithTimeout sets the per-request timeout of the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRequestID overrides the request id generator.
func WithRequestID(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, sess *session.Session, opts ...Option) (*Client, error) {
	if sess == nil {
		return nil, errors.New("api: session is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", baseURL)
	}

	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: 30 * time.Second},
		session: sess,
		log:     logging.Discard(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *session.Session { return c.session }

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() *url.URL { return c.base }

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	auth        bool // attach the bearer token and treat 401 as session loss
}

// send performs req and returns the response body of a 2xx reply. Any other
// status is returned as an *Error; a 401 on an authenticated request
// invalidates the session. Requests are never retried.
func (c *Client) send(ctx context.Context, req request) ([]byte, error) {
	op := req.method + " " + req.path

	var token string
	if req.auth {
		token = c.session.Token()
		if token == "" {
			return nil, &Error{Op: op, Kind: KindAuth, Message: ErrNoSession.Error(), Err: ErrNoSession}
		}
	}

	u := c.base.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	hreq, err := http.NewRequestWithContext(ctx, req.method, u.String(), req.body)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", op, err)
	}
	reqID := c.newID()
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("User-Agent", buildinfo.UserAgent())
	hreq.Header.Set("X-Request-ID", reqID)
	if req.contentType != "" {
		hreq.Header.Set("Content-Type", req.contentType)
	}
	if token != "" {
		hreq.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.log.With(
		slog.String(logging.FieldRequestID, reqID),
		slog.String(logging.FieldMethod, req.method),
		slog.String(logging.FieldPath, req.path),
	)
	start := time.Now()

	resp, err := c.http.Do(hreq)
	if err != nil {
		log.Debug("request failed", slog.String(logging.FieldError, err.Error()))
		return nil, &Error{Op: op, Kind: KindTransport, Message: transportMessage(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Op: op, Status: resp.StatusCode, Kind: KindTransport, Message: "reading response: " + err.Error(), Err: err}
	}

	log = log.With(
		slog.Int(logging.FieldStatus, resp.StatusCode),
		slog.Int64(logging.FieldDuration, time.Since(start).Milliseconds()),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Debug("request completed")
		return body, nil
	}

	apiErr := responseError(op, resp.StatusCode, body)
	if resp.StatusCode == http.StatusUnauthorized && req.auth {
		if c.session.Invalidate() {
			log.Warn("session rejected by server, logged out")
		}
	} else {
		log.Info("request rejected", slog.String(logging.FieldError, apiErr.Message))
	}
	return nil, apiErr
}

func transportMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if uerr.Timeout() {
			return "request timed out"
		}
		return "cannot reach server: " + uerr.Err.Error()
	}
	return err.Error()
}

// doJSON sends in as a JSON body (when non-nil) and decodes the reply into
// out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any, auth bool) error {
	req := request{method: method, path: path, query: query, auth: auth}
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		req.body = bytes.NewReader(buf)
		req.contentType = "application/json"
	}

	body, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{
			Op:      method + " " + path,
			Status:  http.StatusOK,
			Kind:    KindServer,
			Message: "malformed response: " + err.Error(),
			Err:     err,
		}
	}
	return nil
}

// HealthStatus is the reply of GET /api/health.
type HealthStatus struct {
	Status string `json:"status"`
	App    string `json:"app"`
}

// Health checks that the backend is reachable. It does not need a session.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/health", nil, nil, &hs, false)
	return hs, err
}
