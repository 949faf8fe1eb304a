package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/depot/pkg/config"
	"github.com/ajitpratap0/depot/pkg/connector/base"
	"github.com/ajitpratap0/depot/pkg/connector/core"
	"github.com/ajitpratap0/depot/pkg/logger"
	"github.com/ajitpratap0/depot/pkg/metrics"
	"github.com/ajitpratap0/depot/pkg/observability"
)

// environment holds the process wide services of a command.
type environment struct {
	cfg      *config.Config
	deps     core.Dependencies
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	shutdown func()
}

func setup(configFile string) (*environment, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, describe(err)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	log := logger.Component(logger.Get(), "depot-cli").With(
		zap.String("sink", cfg.Sink.Name),
		zap.String("destination", cfg.Sink.Type))

	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = version
	}
	shutdownTracing, err := observability.InitTracing(cfg.Tracing, nil)
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, logger: log}
	env.deps.Logger = log
	env.deps.Instrumentation = metrics.NoopInstrumentation{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		env.deps.Instrumentation = metrics.NewPrometheusInstrumentation(reg, cfg.Metrics.Namespace)
		env.gatherer = reg
	}

	env.shutdown = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return env, nil
}

// startMetricsServer serves /metrics and a /healthz endpoint reporting the
// destination health.
func startMetricsServer(addr string, gatherer prometheus.Gatherer, health *base.HealthChecker, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := health.Status()
		if status.Status == base.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(status.Status + "\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("metrics server listening", zap.String("address", addr))
	return srv
}

func shutdownMetricsServer(srv *http.Server, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("failed to stop metrics server", zap.Error(err))
	}
}
