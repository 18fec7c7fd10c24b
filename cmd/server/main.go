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

	"github.com/DoyleJ11/match-replay/internal/config"
	"github.com/DoyleJ11/match-replay/internal/httpapi"
	"github.com/DoyleJ11/match-replay/internal/hub"
	"github.com/DoyleJ11/match-replay/internal/logging"
	"github.com/DoyleJ11/match-replay/internal/matchstore"
	"github.com/DoyleJ11/match-replay/internal/metrics"
	"github.com/DoyleJ11/match-replay/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := matchstore.New(cfg.MatchDir, log.Named("matchstore"))
	var source httpapi.Source = store
	if cfg.UpstreamURL != "" {
		f, err := transport.NewHTTPFetcher(cfg.UpstreamURL, cfg.FetchTimeout, log.Named("upstream"))
		if err != nil {
			return err
		}
		source = f
		log.Info("fetching matches upstream", zap.String("url", cfg.UpstreamURL))
	}

	h := hub.NewHub(ctx)
	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:          h,
		Store:        store,
		Source:       source,
		Gatherer:     prometheus.DefaultGatherer,
		Metrics:      metrics.New(prometheus.DefaultRegisterer),
		Logger:       log,
		TickInterval: cfg.TickInterval,
		FetchTimeout: cfg.FetchTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("matches", cfg.MatchDir))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	h.Inbox() <- hub.ShutdownHub{}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// websocket connections are hijacked; closing sessions above ends them.
	return srv.Shutdown(shutdownCtx)
}
