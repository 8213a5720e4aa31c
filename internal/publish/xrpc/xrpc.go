// Package xrpc is the thin HTTP transport shared by every remote call the
// publish pipeline makes. It builds XRPC URLs, attaches bearer credentials,
// and decodes the remote error envelope; classification into failure kinds is
// left to the calling component, which knows which stage it is in.
package xrpc

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
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues XRPC calls against one host.
type Client struct {
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (shared pools, tests).
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the host at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the host this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Endpoint returns the full URL of an XRPC method on this host.
func (c *Client) Endpoint(nsid string) string {
	return c.baseURL + "/xrpc/" + nsid
}

// Request describes one XRPC call.
type Request struct {
	Method string
	NSID   string
	Query  url.Values
	// Token is sent as a bearer credential when non-empty.
	Token string
	// JSON is marshalled as the request body when set.
	JSON any
	// Body is streamed as-is when JSON is nil.
	Body          io.Reader
	ContentLength int64
	ContentType   string
}

// Response is a fully-read XRPC response of any status.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// errorEnvelope is the XRPC error body shape.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorMessage extracts a display message from an error response: the JSON
// message (or error code) when the body is JSON, else the raw text, else the
// status text.
func (r *Response) ErrorMessage() string {
	var env errorEnvelope
	if json.Unmarshal(r.Body, &env) == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	if text := strings.TrimSpace(string(r.Body)); text != "" {
		return text
	}
	return fmt.Sprintf("%d %s", r.Status, http.StatusText(r.Status))
}

// ErrorCode returns the XRPC error name of an error response, or "".
func (r *Response) ErrorCode() string {
	var env errorEnvelope
	if json.Unmarshal(r.Body, &env) != nil {
		return ""
	}
	return env.Error
}

// Do performs the call and reads the whole response. A non-nil error means
// the exchange itself failed; non-2xx statuses are returned as responses.
// Context cancellation surfaces as a failure.KindCanceled error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if err := failure.FromContext(ctx); err != nil {
		return nil, err
	}

	target := c.Endpoint(req.NSID)
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	body := req.Body
	contentType := req.ContentType
	contentLength := req.ContentLength
	if req.JSON != nil {
		encoded, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", req.NSID, err)
		}
		body = bytes.NewReader(encoded)
		contentLength = int64(len(encoded))
		if contentType == "" {
			contentType = "application/json"
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", req.NSID, err)
	}
	if contentLength > 0 {
		httpReq.ContentLength = contentLength
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctxErr := failure.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("execute %s: %w", req.NSID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := failure.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read %s response: %w", req.NSID, err)
	}

	c.logger.DebugContext(ctx, "xrpc call",
		"nsid", req.NSID,
		"method", method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   respBody,
	}, nil
}
