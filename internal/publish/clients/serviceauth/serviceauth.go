// Package serviceauth mints short-lived, audience-scoped tokens for a single
// remote capability from a long-lived session token.
package serviceauth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"slowclaw/internal/publish/failure"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/xrpc"
)

// Minter derives scoped tokens. Tokens are re-derived on every call; minting is
// cheap and the expiry window bounds the cost.
type Minter struct {
	httpClient xrpc.HTTPDoer
	logger     *slog.Logger
	ttl        time.Duration
	now        func() time.Time
}

// Option configures the Minter.
type Option func(*Minter)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client xrpc.HTTPDoer) Option {
	return func(m *Minter) {
		m.httpClient = client
	}
}

// WithLogger sets the logger for the minter.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Minter) {
		m.logger = logger
	}
}

// WithClock overrides the issuance clock.
func WithClock(now func() time.Time) Option {
	return func(m *Minter) {
		m.now = now
	}
}

// New creates a minter whose tokens expire models.ScopedTokenTTL after issuance.
func New(opts ...Option) *Minter {
	m := &Minter{
		logger: slog.New(slog.DiscardHandler),
		ttl:    models.ScopedTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type serviceAuthResponse struct {
	Token string `json:"token"`
}

// Mint produces a token bound to capability (a lexicon method name). The
// audience comes from the session token's claims when readable, else from the
// service host; a missing claim never fails the mint.
func (m *Minter) Mint(ctx context.Context, sess *models.Session, capability string) (*models.ScopedAuthToken, error) {
	if sess == nil || sess.AccessToken == "" {
		return nil, failure.New(failure.KindAuth, "no active session")
	}

	endpoint := sess.ServiceEndpoint
	if endpoint == "" {
		endpoint = models.DefaultServiceEndpoint
	}

	audience, fromClaims := PeekAudience(sess.AccessToken)
	if !fromClaims {
		audience = FallbackAudience(endpoint)
		m.logger.DebugContext(ctx, "access token has no readable aud claim, using service host",
			"audience", audience,
		)
	}
	expiresAt := m.now().Add(m.ttl)

	query := url.Values{}
	query.Set("aud", audience)
	query.Set("lxm", capability)
	query.Set("exp", strconv.FormatInt(expiresAt.Unix(), 10))

	client := xrpc.New(endpoint, xrpc.WithHTTPClient(m.httpClient), xrpc.WithLogger(m.logger))
	resp, err := client.Do(ctx, xrpc.Request{
		Method: http.MethodGet,
		NSID:   models.NSIDGetServiceAuth,
		Query:  query,
		Token:  sess.AccessToken,
	})
	if err != nil {
		return nil, failure.Wrap(failure.KindUpload, "could not obtain upload authorization", err)
	}
	if !resp.OK() {
		return nil, failure.WithRemote(failure.KindUpload, resp.Status, resp.ErrorCode(),
			"upload authorization rejected: "+resp.ErrorMessage())
	}

	var body serviceAuthResponse
	if err := resp.Decode(&body); err != nil || body.Token == "" {
		return nil, failure.New(failure.KindUpload, "upload authorization response missing token")
	}

	return &models.ScopedAuthToken{
		Token:     body.Token,
		Audience:  audience,
		ExpiresAt: expiresAt,
	}, nil
}
