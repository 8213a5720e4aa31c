// Package session exchanges an identity and app password for an access
// session against the remote service.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/xrpc"
)

// Client performs the session exchange. It never retries; retry policy
// belongs to the caller.
type Client struct {
	httpClient xrpc.HTTPDoer
	logger     *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client xrpc.HTTPDoer) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a session client.
func New(opts ...Option) *Client {
	c := &Client{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createSessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type createSessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

// CreateSession performs one authenticated exchange and returns a Session.
// Rejections and unreachable services fail with failure.KindAuth carrying the
// remote status and message.
func (c *Client) CreateSession(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	endpoint := strings.TrimSpace(creds.ServiceEndpoint)
	if endpoint == "" {
		endpoint = models.DefaultServiceEndpoint
	}
	if strings.TrimSpace(creds.Identifier) == "" || creds.Password == "" {
		return nil, failure.New(failure.KindAuth, "handle and app password are required")
	}

	client := xrpc.New(endpoint, xrpc.WithHTTPClient(c.httpClient), xrpc.WithLogger(c.logger))
	resp, err := client.Do(ctx, xrpc.Request{
		Method: http.MethodPost,
		NSID:   models.NSIDCreateSession,
		JSON: createSessionRequest{
			Identifier: strings.TrimSpace(creds.Identifier),
			Password:   creds.Password,
		},
	})
	if err != nil {
		return nil, failure.Wrap(failure.KindAuth, "could not reach "+endpoint, err)
	}
	if !resp.OK() {
		c.logger.WarnContext(ctx, "session exchange rejected",
			"status", resp.Status,
			"identifier", creds.Identifier,
		)
		return nil, failure.WithStatus(failure.KindAuth, resp.Status, resp.ErrorMessage())
	}

	var body createSessionResponse
	if err := resp.Decode(&body); err != nil {
		return nil, failure.Wrap(failure.KindAuth, "malformed session response", err)
	}
	if body.AccessJwt == "" || body.DID == "" {
		return nil, failure.New(failure.KindAuth, "session response missing accessJwt or did")
	}

	handle := body.Handle
	if handle == "" {
		handle = strings.TrimSpace(creds.Identifier)
	}

	return &models.Session{
		AccessToken:     body.AccessJwt,
		RefreshToken:    body.RefreshJwt,
		DID:             body.DID,
		Handle:          handle,
		ServiceEndpoint: client.BaseURL(),
	}, nil
}

// FromToken builds a Session from a pre-issued access token and DID, skipping
// the login exchange.
func FromToken(serviceEndpoint, accessToken, did, handle string) (*models.Session, error) {
	accessToken = strings.TrimSpace(accessToken)
	did = strings.TrimSpace(did)
	if accessToken == "" || did == "" {
		return nil, failure.New(failure.KindAuth, "access token and did are required")
	}
	endpoint := strings.TrimRight(strings.TrimSpace(serviceEndpoint), "/")
	if endpoint == "" {
		endpoint = models.DefaultServiceEndpoint
	}
	return &models.Session{
		AccessToken:     accessToken,
		DID:             did,
		Handle:          strings.TrimSpace(handle),
		ServiceEndpoint: endpoint,
	}, nil
}
