// Package bootstrap assembles a ready-to-use vector store from configuration:
// it loads config, builds the logger and telemetry, constructs the store
// selected by the provider and exposes its Prometheus metrics.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/telemetry"
	"github.com/fyrsmithlabs/ragstore/pkg/config"
	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore"
)

// Options controls Open.
type Options struct {
	// ConfigPath is the YAML file to load. Empty selects
	// ~/.config/ragstore/config.yaml. Ignored when Config is set.
	ConfigPath string

	// Config is used as-is instead of loading from disk and environment.
	Config *config.Config

	// LogWriter replaces stdout as the log destination.
	LogWriter zapcore.WriteSyncer

	// TelemetryOptions are passed to telemetry.New.
	TelemetryOptions []telemetry.Option

	// StoreOptions are passed to vectorstore.NewStore.
	StoreOptions []vectorstore.FactoryOption
}

// Runtime owns the store and its supporting infrastructure.
type Runtime struct {
	config    *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     vectorstore.Store
	registry  *prometheus.Registry

	closeOnce sync.Once
	closeErr  error
}

// Open builds a Runtime. On failure everything created so far is released.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadWithFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging, opts.LogWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	telOpts := append([]telemetry.Option{telemetry.WithLogger(logger.Underlying().Named("telemetry"))}, opts.TelemetryOptions...)
	tel, err := telemetry.New(ctx, telemetry.FromSection(cfg.Telemetry), telOpts...)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	store, err := vectorstore.NewStore(cfg.VectorStore, logger.Underlying().Named("vectorstore"), opts.StoreOptions...)
	if err != nil {
		logger.Error(ctx, "failed to create vector store",
			zap.String("provider", cfg.VectorStore.ProviderName()),
			zap.Error(err))
		return nil, errors.Join(
			fmt.Errorf("failed to create vector store: %w", err),
			tel.Shutdown(ctx),
			logger.Sync(),
		)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		vectorstore.NewCollector(map[string]vectorstore.Store{
			cfg.VectorStore.ProviderName(): store,
		}),
	)

	logCtx := ctx
	if name := cfg.VectorStore.Collection(); name != "" {
		if c, err := logging.WithCollection(ctx, name); err == nil {
			logCtx = c
		}
	}
	logger.Info(logCtx, "ragstore runtime ready",
		zap.String("provider", cfg.VectorStore.ProviderName()),
		zap.Int("top_k", store.TopK()),
		zap.String("score_kind", string(store.ScoreKind())),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	return &Runtime{
		config:    cfg,
		logger:    logger,
		telemetry: tel,
		store:     store,
		registry:  registry,
	}, nil
}

func newLogger(section config.LoggingConfig, writer zapcore.WriteSyncer) (*logging.Logger, error) {
	cfg, err := logging.FromSection(section)
	if err != nil {
		return nil, err
	}

	var provider otellog.LoggerProvider
	if cfg.Output.OTEL {
		provider = global.GetLoggerProvider()
	}

	var opts []logging.Option
	if writer != nil {
		opts = append(opts, logging.WithWriter(writer))
	}
	return logging.NewLogger(cfg, provider, opts...)
}

// Store returns the configured vector store.
func (r *Runtime) Store() vectorstore.Store {
	return r.store
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *logging.Logger {
	return r.logger
}

// Config returns the effective configuration.
func (r *Runtime) Config() *config.Config {
	return r.config
}

// Telemetry returns the telemetry instance.
func (r *Runtime) Telemetry() *telemetry.Telemetry {
	return r.telemetry
}

// Registry returns the Prometheus registry holding the store collector.
func (r *Runtime) Registry() *prometheus.Registry {
	return r.registry
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func (r *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Close closes the store, shuts down telemetry and flushes logs. Errors are
// joined. Subsequent calls return the first result.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.logger.Info(ctx, "ragstore runtime closing")
		r.closeErr = errors.Join(
			r.store.Close(),
			r.telemetry.Shutdown(ctx),
			r.logger.Sync(),
		)
	})
	return r.closeErr
}
