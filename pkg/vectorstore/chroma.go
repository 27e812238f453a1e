package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	backendChroma = "chroma"

	defaultChromaHost    = "http://localhost:8000"
	defaultChromaTopK    = 5
	defaultChromaTimeout = 30 * time.Second

	// maxErrorBodySize bounds how much of an error response is kept.
	maxErrorBodySize = 4 * 1024
)

var chromaTracer = otel.Tracer("ragstore.vectorstore.chroma")

// ChromaConfig holds configuration for the remote Chroma-style store.
type ChromaConfig struct {
	// Host is the base URL of the database.
	// Default: "http://localhost:8000"
	Host string `koanf:"host"`

	// Collection is the target collection name. Required.
	Collection string `koanf:"collection"`

	// TopK is sent as nResults on every query.
	// Default: 5
	TopK int `koanf:"top_k"`

	// Timeout bounds each HTTP request.
	// Default: 30s
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond limits outgoing requests. Zero disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Burst is the limiter bucket size. Default: 1 when limiting is enabled.
	Burst int `koanf:"burst"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromaConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = defaultChromaHost
	}
	if c.TopK == 0 {
		c.TopK = defaultChromaTopK
	}
	if c.Timeout == 0 {
		c.Timeout = defaultChromaTimeout
	}
	if c.RequestsPerSecond > 0 && c.Burst == 0 {
		c.Burst = 1
	}
}

// Validate validates the configuration.
func (c ChromaConfig) Validate() error {
	if err := ValidateCollectionName(c.Collection); err != nil {
		return err
	}
	u, err := url.Parse(c.Host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: chroma host must be an absolute URL, got %q", ErrInvalidConfig, c.Host)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests_per_second cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ChromaOption configures a ChromaStore.
type ChromaOption func(*ChromaStore)

// WithHTTPClient replaces the default HTTP client. The client's own timeout
// is used instead of ChromaConfig.Timeout.
func WithHTTPClient(client *http.Client) ChromaOption {
	return func(s *ChromaStore) {
		s.httpClient = client
	}
}

// ChromaStore is a Store backed by a remote collection-scoped vector database
// speaking a Chroma-style JSON API.
//
// The store keeps no local copy of documents. Each AddDocuments call is one
// upsert request and each SimilaritySearch is one query request; nothing is
// retried. Scores are the raw distances reported by the database (lower is
// more similar) and results keep the database's order.
type ChromaStore struct {
	baseURL    string
	config     ChromaConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *Metrics
}

// NewChromaStore creates a ChromaStore. No request is made until the first operation.
func NewChromaStore(config ChromaConfig, logger *zap.Logger, opts ...ChromaOption) (*ChromaStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating chroma config: %w", err)
	}

	s := &ChromaStore{
		baseURL: strings.TrimRight(config.Host, "/") + "/api/v1/collections/" + url.PathEscape(config.Collection) + "/",
		config:  config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  logger,
		metrics: NewMetrics(logger),
	}
	if config.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}

	for _, opt := range opts {
		opt(s)
	}

	logger.Info("ChromaStore initialized",
		zap.String("base_url", s.baseURL),
		zap.Int("top_k", config.TopK),
		zap.Duration("timeout", config.Timeout),
	)

	return s, nil
}

// AddDocument upserts one document.
func (s *ChromaStore) AddDocument(ctx context.Context, doc Document) error {
	return s.AddDocuments(ctx, []Document{doc})
}

// AddDocuments upserts docs in a single request.
func (s *ChromaStore) AddDocuments(ctx context.Context, docs []Document) error {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	err := s.post(ctx, "upsert", BuildUpsertRequest(docs), nil)
	s.metrics.RecordOperation(ctx, backendChroma, "add_documents", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %d documents to %s: %w", len(docs), s.config.Collection, err)
	}

	s.metrics.RecordAdded(ctx, backendChroma, len(docs))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted documents to chroma",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// SimilaritySearch queries the collection for the TopK nearest documents.
func (s *ChromaStore) SimilaritySearch(ctx context.Context, query []float32) ([]SearchResult, error) {
	ctx, span := chromaTracer.Start(ctx, "ChromaStore.SimilaritySearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("top_k", s.config.TopK),
	)

	start := time.Now()
	results, err := s.query(ctx, query)
	s.metrics.RecordOperation(ctx, backendChroma, "similarity_search", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying %s: %w", s.config.Collection, err)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("queried chroma collection",
		zap.String("collection", s.config.Collection),
		zap.Int("top_k", s.config.TopK),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func (s *ChromaStore) query(ctx context.Context, embedding []float32) ([]SearchResult, error) {
	var resp QueryResponse
	req := QueryRequest{QueryEmbeddings: embedding, NResults: s.config.TopK}
	if err := s.post(ctx, "query", req, &resp); err != nil {
		return nil, err
	}
	return ParseQueryResponse(resp)
}

// post sends body as JSON to the collection endpoint op and decodes the
// response into out when out is non-nil.
func (s *ChromaStore) post(ctx context.Context, op string, body any, out any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", ErrTransport, err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+op, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: creating %s request: %w", ErrTransport, op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %w", ErrTransport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Operation: op, StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %w", ErrTransport, op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrMalformedResponse, op, err)
	}
	return nil
}

// TopK returns the configured result limit.
func (s *ChromaStore) TopK() int {
	return s.config.TopK
}

// ScoreKind returns ScoreDistance.
func (s *ChromaStore) ScoreKind() ScoreKind {
	return ScoreDistance
}

// Close releases idle HTTP connections.
func (s *ChromaStore) Close() error {
	s.httpClient.CloseIdleConnections()
	s.logger.Info("chroma store closed")
	return nil
}
