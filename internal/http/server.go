// Package http provides the ragstore HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/pkg/config"
	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore"
)

// Server exposes a vector store over HTTP.
type Server struct {
	echo           *echo.Echo
	store          vectorstore.Store
	logger         *zap.Logger
	config         *Config
	metrics        *HTTPMetrics
	metricsHandler http.Handler
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxBodyBytes caps request bodies. Zero disables the limit.
	MaxBodyBytes int64
}

// FromSection maps the server section of the ragstore config.
func FromSection(section config.ServerConfig) *Config {
	return &Config{
		Host:         section.Host,
		Port:         section.Port,
		MaxBodyBytes: section.MaxBodyBytes,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithHTTPMetrics replaces the OpenTelemetry request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new HTTP server.
func NewServer(store vectorstore.Store, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		store:  store,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewHTTPMetrics(logger)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.MaxBodyBytes > 0 {
		e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxBodyBytes, 10)))
	}
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestContext)
	e.Use(s.requestLogger)

	s.registerRoutes()

	return s, nil
}

// requestContext carries the request ID into the context seen by the store.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		if ctx, err := logging.WithRequestID(c.Request().Context(), id); err == nil {
			c.SetRequest(c.Request().WithContext(ctx))
		}
		return next(c)
	}
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleAddDocuments)
	v1.POST("/search", s.handleSearch)
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:    "ok",
		TopK:      s.store.TopK(),
		ScoreKind: s.store.ScoreKind(),
	}
	if counter, ok := s.store.(vectorstore.Counter); ok {
		n := counter.Len()
		resp.Documents = &n
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAddDocuments(c echo.Context) error {
	var req AddDocumentsRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid add documents request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	}

	docs := make([]vectorstore.Document, len(req.Documents))
	for i, p := range req.Documents {
		docs[i] = p.ToDocument()
	}

	if err := s.store.AddDocuments(c.Request().Context(), docs); err != nil {
		return s.storeError(c, "add documents", err)
	}

	return c.JSON(http.StatusOK, AddDocumentsResponse{Added: len(docs)})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Embedding) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "embedding field is required")
	}

	results, err := s.store.SimilaritySearch(c.Request().Context(), req.Embedding)
	if err != nil {
		return s.storeError(c, "search", err)
	}

	resp := SearchResponse{
		ScoreKind: s.store.ScoreKind(),
		Results:   make([]SearchResultPayload, len(results)),
	}
	for i, r := range results {
		resp.Results[i] = SearchResultPayload{
			Document: PayloadFromDocument(r.Document),
			Score:    r.Score,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// storeError logs a store failure and maps it to an HTTP status.
func (s *Server) storeError(c echo.Context, op string, err error) error {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("operation", op),
		zap.Int("status", status),
		zap.Error(err),
	}
	fields = append(fields, logging.ContextFields(c.Request().Context())...)
	if status >= http.StatusInternalServerError {
		s.logger.Error("vector store request failed", fields...)
	} else {
		s.logger.Warn("vector store rejected request", fields...)
	}
	return echo.NewHTTPError(status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, vectorstore.ErrDimensionMismatch),
		errors.Is(err, vectorstore.ErrZeroMagnitude),
		errors.Is(err, vectorstore.ErrInvalidVector),
		errors.Is(err, vectorstore.ErrMissingEmbedding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, vectorstore.ErrTransport),
		errors.Is(err, vectorstore.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Start starts the HTTP server. It blocks until the server stops and returns
// nil after a graceful Shutdown.
func (s *Server) Start() error {
	addr := s.Addr()
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
