package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"slowclaw/internal/bootstrap"
	"slowclaw/internal/platform/config"
	"slowclaw/internal/platform/health"
	"slowclaw/internal/platform/httpserver"
	"slowclaw/internal/platform/logger"
	"slowclaw/internal/publish/handler"
	"slowclaw/internal/publish/service"
	httptransport "slowclaw/internal/transport/http"
	request "slowclaw/pkg/platform/middleware/request"
)

const shutdownTimeout = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Publish logic lives in internal/publish.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	log.Info("initializing slowclaw",
		"addr", cfg.Addr,
		"env", cfg.Environment,
		"bluesky_service", cfg.Bluesky.ServiceURL,
		"video_service", cfg.Video.ServiceURL,
		"tracing", cfg.Tracing,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	components, err := bootstrap.Build(cfg, log, reg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	svc, err := service.New(components.Publisher, components.Sessions, service.Config{
		Retain:     cfg.TaskRetention,
		RunTimeout: cfg.RunTimeout,
	},
		service.WithLogger(log),
		service.WithRequester(components.Facade),
		service.WithTracer(components.Tracer),
	)
	if err != nil {
		return fmt.Errorf("create publish service: %w", err)
	}

	healthHandler := health.New(cfg.Environment, health.WithActiveTasks(svc.Active))
	healthHandler.RegisterCheck("credentials", func(context.Context) error {
		if cfg.Bluesky.HasToken() || cfg.Bluesky.HasLogin() {
			return nil
		}
		return errors.New("no bluesky credentials configured")
	})

	router := httptransport.NewRouter(handler.New(svc, log), healthHandler, httptransport.RouterConfig{
		Logger:         log,
		Gatherer:       reg,
		Latency:        request.NewMetrics(reg),
		HandlerTimeout: cfg.HandlerTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := svc.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("publish shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
