// Package facade issues one-shot authenticated calls against the remote
// protocol for diagnostics. It is not part of the publish state machine: no
// retries, no polling.
package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/xrpc"
)

// Client is the generic authenticated request facade.
type Client struct {
	httpClient xrpc.HTTPDoer
	logger     *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client xrpc.HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a facade client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one call. Target is absolute or relative to the session's
// service endpoint. Body may be nil, raw bytes, a string, or any value that
// marshals to JSON.
type Request struct {
	Method  string            `json:"method"`
	Target  string            `json:"target"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// Response mirrors the remote response. Data is the JSON-decoded body when it
// parses, else the raw text.
type Response struct {
	OK         bool   `json:"ok"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Data       any    `json:"data"`
	// Authenticated is set when the call carried the session's access token.
	Authenticated bool `json:"-"`
}

// ErrorCode returns the XRPC error name of a JSON error body, or "".
func (r *Response) ErrorCode() string {
	data, ok := r.Data.(map[string]any)
	if !ok {
		return ""
	}
	code, _ := data["error"].(string)
	return code
}

// Do issues the call. The session's bearer token is injected only when the
// target is on the session's service host and no Authorization header is
// given; other hosts never see it. A JSON content type is injected when there
// is a body and none is set.
func (c *Client) Do(ctx context.Context, sess *models.Session, req Request) (*Response, error) {
	if sess == nil || sess.AccessToken == "" {
		return nil, failure.New(failure.KindAuth, "no active session")
	}

	base := serviceBase(sess.ServiceEndpoint)
	target, onService, err := resolveTarget(base, req.Target)
	if err != nil {
		return nil, failure.Wrap(failure.KindInvalidInput, "invalid request target", err)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, failure.Wrap(failure.KindInvalidInput, "invalid request body", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, failure.Wrap(failure.KindInvalidInput, "invalid request", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	authenticated := onService && httpReq.Header.Get("Authorization") == ""
	if authenticated {
		httpReq.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := failure.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("request %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.DebugContext(ctx, "facade request",
		"method", method,
		"target", target,
		"status", resp.StatusCode,
	)

	return &Response{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Data:       decodeData(raw),

		Authenticated: authenticated,
	}, nil
}

func serviceBase(serviceEndpoint string) string {
	base := strings.TrimRight(strings.TrimSpace(serviceEndpoint), "/")
	if base == "" {
		return models.DefaultServiceEndpoint
	}
	return base
}

// resolveTarget makes target absolute against base and reports whether it
// points at the same scheme and host as base.
func resolveTarget(base, target string) (string, bool, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false, fmt.Errorf("target is required")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", false, err
	}
	if !u.IsAbs() {
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		return base + target, true, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return u.String(), false, nil
	}
	same := strings.EqualFold(u.Scheme, b.Scheme) && strings.EqualFold(u.Host, b.Host)
	return u.String(), same, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

func decodeData(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var data any
	if err := json.Unmarshal(raw, &data); err == nil {
		return data
	}
	return string(raw)
}
