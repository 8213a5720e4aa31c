// Package bootstrap builds the publish pipeline from configuration. The server
// and the CLI share it so both talk to the remote services the same way.
package bootstrap

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"slowclaw/internal/platform/config"
	"slowclaw/internal/publish/clients/serviceauth"
	"slowclaw/internal/publish/clients/session"
	"slowclaw/internal/publish/clients/video"
	"slowclaw/internal/publish/facade"
	"slowclaw/internal/publish/metrics"
	"slowclaw/internal/publish/models"
	"slowclaw/internal/publish/pipeline"
	"slowclaw/internal/publish/poller"
	"slowclaw/internal/publish/record"
	"slowclaw/internal/publish/tracer"
	"slowclaw/internal/publish/xrpc"
)

// Components are the wired collaborators of one process.
type Components struct {
	HTTPClient *http.Client
	Sessions   *session.Source
	Publisher  *pipeline.Publisher
	Facade     *facade.Client
	Metrics    *metrics.Metrics
	Tracer     tracer.Tracer
}

// Build wires the pipeline. reg may be nil to skip metrics registration
// (the CLI has no scrape endpoint).
func Build(cfg config.Server, logger *slog.Logger, reg prometheus.Registerer) (*Components, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	sessions, err := newSessionSource(cfg.Bluesky, httpClient, logger)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	var tr tracer.Tracer = tracer.NewNoop()
	if cfg.Tracing {
		tr = tracer.NewOTel()
	}

	doer := xrpc.WithHTTPClient(httpClient)
	status := video.NewStatusClient(cfg.Video.ServiceURL, doer, xrpc.WithLogger(logger))
	publisher := pipeline.NewPublisher(pipeline.Dependencies{
		Minter: serviceauth.New(
			serviceauth.WithHTTPClient(httpClient),
			serviceauth.WithLogger(logger),
		),
		Uploader: video.NewUploader(cfg.Video.ServiceURL, logger, doer),
		Poller: poller.New(status,
			poller.Config{Interval: cfg.Video.PollInterval, Timeout: cfg.Video.PollTimeout},
			poller.WithLogger(logger),
			poller.WithPollObserver(func(state models.JobState) { m.RecordPoll(string(state)) }),
		),
		Records: record.New(
			record.WithHTTPClient(httpClient),
			record.WithLogger(logger),
		),
		Tracer:  tr,
		Metrics: m,
		Logger:  logger,
	})

	return &Components{
		HTTPClient: httpClient,
		Sessions:   sessions,
		Publisher:  publisher,
		Facade:     facade.New(facade.WithHTTPClient(httpClient), facade.WithLogger(logger)),
		Metrics:    m,
		Tracer:     tr,
	}, nil
}

// newSessionSource prefers a pre-issued token, then a lazy login. With
// neither configured, every publish fails with an auth failure.
func newSessionSource(cfg config.Bluesky, httpClient *http.Client, logger *slog.Logger) (*session.Source, error) {
	if cfg.HasToken() {
		sess, err := session.FromToken(cfg.ServiceURL, cfg.AccessJWT, cfg.DID, cfg.Handle)
		if err != nil {
			return nil, err
		}
		sess.RefreshToken = cfg.RefreshJWT
		return session.StaticSource(sess), nil
	}
	if !cfg.HasLogin() {
		logger.Warn("no bluesky credentials configured; publishing will fail until they are set")
		return session.NewSource(nil, cfg.Credentials()), nil
	}
	client := session.New(
		session.WithHTTPClient(httpClient),
		session.WithLogger(logger),
	)
	return session.NewSource(client, cfg.Credentials()), nil
}
