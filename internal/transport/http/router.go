package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slowclaw/internal/platform/health"
	"slowclaw/internal/publish/handler"
	request "slowclaw/pkg/platform/middleware/request"
)

// RouterConfig carries what the router needs beyond the handlers.
type RouterConfig struct {
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer
	Latency        *request.Metrics
	HandlerTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter wires all local endpoints with middleware. Progress streams are
// mounted outside the timeout group since they hijack the connection.
func NewRouter(publish *handler.Handler, healthHandler *health.Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(request.ClientMetadata)
	r.Use(request.Logger(cfg.Logger))
	if cfg.Latency != nil {
		r.Use(request.LatencyMiddleware(cfg.Latency))
	}

	healthHandler.Register(r)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	publish.RegisterStreams(r)

	r.Group(func(r chi.Router) {
		if cfg.HandlerTimeout > 0 {
			r.Use(request.Timeout(cfg.HandlerTimeout))
		}
		if cfg.MaxBodyBytes > 0 {
			r.Use(request.BodyLimit(cfg.MaxBodyBytes))
		}
		r.Use(request.ContentTypeJSON)
		publish.Register(r)
	})

	return r
}
