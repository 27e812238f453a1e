package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	backendChromem        = "chromem"
	defaultChromemTopK    = 4
	defaultChromemCollect = "ragstore_default"
)

var chromemTracer = otel.Tracer("ragstore.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path enables persistence to gob files in this directory.
	// Empty keeps the database in memory only.
	Path string `koanf:"path"`

	// Compress enables gzip compression for persisted files.
	Compress bool `koanf:"compress"`

	// Collection is the collection name.
	// Default: "ragstore_default"
	Collection string `koanf:"collection"`

	// TopK is the maximum number of search results.
	// Default: 4
	TopK int `koanf:"top_k"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = defaultChromemCollect
	}
	if c.TopK == 0 {
		c.TopK = defaultChromemTopK
	}
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, c.TopK)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore is a Store backed by a chromem-go collection.
//
// chromem-go normalizes vectors on insert and ranks by cosine similarity, so
// scores follow ScoreSimilarity. Search results carry the stored unit-length
// vector, not the embedding the caller added. Documents without an ID receive
// a random UUID because chromem requires one. The vector dimension is fixed
// by the first document added.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
	metrics    *Metrics

	mu  sync.RWMutex
	dim int
}

// NewChromemStore creates a ChromemStore, opening or creating its collection.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating chromem config: %w", err)
	}

	db := chromem.NewDB()
	if config.Path != "" {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, refuseToEmbed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", config.Path),
		zap.String("collection", config.Collection),
		zap.Int("top_k", config.TopK),
		zap.Int("documents", collection.Count()),
	)

	return &ChromemStore{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
		metrics:    NewMetrics(logger),
	}, nil
}

// refuseToEmbed is the collection's embedding function. Embeddings are always
// supplied by the caller, so chromem asking for one means it is missing.
func refuseToEmbed(_ context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: document with content %q", ErrMissingEmbedding, preview(text))
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// AddDocument adds one document.
func (s *ChromemStore) AddDocument(ctx context.Context, doc Document) error {
	return s.AddDocuments(ctx, []Document{doc})
}

// AddDocuments adds docs to the collection. Every document must carry an
// embedding of the collection's dimension.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	err := s.add(ctx, docs)
	s.metrics.RecordOperation(ctx, backendChromem, "add_documents", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.metrics.RecordAdded(ctx, backendChromem, len(docs))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added documents to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

func (s *ChromemStore) add(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if !doc.HasEmbedding() {
			return fmt.Errorf("%w: document at index %d with content %q", ErrMissingEmbedding, i, preview(doc.Content))
		}
		if dim == 0 {
			dim = len(doc.Embedding)
		}
		if len(doc.Embedding) != dim {
			return fmt.Errorf("%w: document at index %d has %d dimensions, collection has %d", ErrDimensionMismatch, i, len(doc.Embedding), dim)
		}
		if err := validateVector(doc.Embedding); err != nil {
			return fmt.Errorf("document at index %d: %w", i, err)
		}

		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		chromemDocs[i] = chromem.Document{
			ID:        id,
			Content:   doc.Content,
			Metadata:  doc.metadata(),
			Embedding: append([]float32(nil), doc.Embedding...),
		}
	}

	// Embeddings are present, so no concurrent embedding work is needed.
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("adding documents to %s: %w", s.config.Collection, err)
	}
	s.dim = dim
	return nil
}

// SimilaritySearch returns the TopK most similar documents.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, query []float32) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.SimilaritySearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("top_k", s.config.TopK),
	)

	start := time.Now()
	results, err := s.search(ctx, query)
	s.metrics.RecordOperation(ctx, backendChromem, "similarity_search", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func (s *ChromemStore) search(ctx context.Context, query []float32) ([]SearchResult, error) {
	s.mu.RLock()
	dim := s.dim
	s.mu.RUnlock()

	// chromem requires nResults <= document count.
	n := min(s.config.TopK, s.collection.Count())
	if n == 0 {
		return []SearchResult{}, nil
	}
	// dim is unknown for a reopened persistent collection until the first
	// query returns an embedding.
	if dim != 0 && len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", ErrDimensionMismatch, len(query), dim)
	}
	if err := validateVector(query); err != nil {
		return nil, err
	}

	res, err := s.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	if dim == 0 && len(res) > 0 {
		s.mu.Lock()
		if s.dim == 0 {
			s.dim = len(res[0].Embedding)
		}
		s.mu.Unlock()
	}

	results := make([]SearchResult, len(res))
	for i, r := range res {
		doc := Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: append([]float32(nil), r.Embedding...),
		}
		doc.applyMetadata(r.Metadata)
		results[i] = SearchResult{Document: doc, Score: float64(r.Similarity)}
	}
	return results, nil
}

// Len returns the number of documents in the collection.
func (s *ChromemStore) Len() int {
	return s.collection.Count()
}

// TopK returns the configured result limit.
func (s *ChromemStore) TopK() int {
	return s.config.TopK
}

// ScoreKind returns ScoreSimilarity.
func (s *ChromemStore) ScoreKind() ScoreKind {
	return ScoreSimilarity
}

// Close is a no-op; persistent collections are written on every add.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed", zap.String("collection", s.config.Collection))
	return nil
}
