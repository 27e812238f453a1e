package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	backendMemory      = "memory"
	defaultMemoryTopK  = 4
	contentPreviewSize = 80
)

var memoryTracer = otel.Tracer("ragstore.vectorstore.memory")

// MemoryConfig holds configuration for the in-process store.
type MemoryConfig struct {
	// TopK is the maximum number of search results.
	// Default: 4
	TopK int `koanf:"top_k"`
}

// MemoryStore is a brute-force, in-process Store.
//
// Every search scans all stored documents, so it suits small and medium
// corpora only. Documents live for the lifetime of the process.
//
// A single RWMutex guards the document slice: adds are exclusive, searches
// share the lock. Searches never mutate stored documents.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    []Document
	topK    int
	logger  *zap.Logger
	metrics *Metrics
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(config MemoryConfig, logger *zap.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	topK, err := resolveTopK(config.TopK, defaultMemoryTopK)
	if err != nil {
		return nil, err
	}

	return &MemoryStore{
		topK:    topK,
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// AddDocument appends one document.
func (s *MemoryStore) AddDocument(ctx context.Context, doc Document) error {
	return s.AddDocuments(ctx, []Document{doc})
}

// AddDocuments appends docs in order. The store keeps its own copies.
func (s *MemoryStore) AddDocuments(ctx context.Context, docs []Document) error {
	_, span := memoryTracer.Start(ctx, "MemoryStore.AddDocuments")
	defer span.End()
	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	copies := make([]Document, len(docs))
	for i, doc := range docs {
		copies[i] = doc.Clone()
	}

	s.mu.Lock()
	s.docs = append(s.docs, copies...)
	total := len(s.docs)
	s.mu.Unlock()

	s.metrics.RecordOperation(ctx, backendMemory, "add_documents", time.Since(start), nil)
	s.metrics.RecordAdded(ctx, backendMemory, len(docs))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added documents to memory store",
		zap.Int("count", len(docs)),
		zap.Int("total", total),
	)
	return nil
}

// rankedDoc pairs a stored document index with its cosine distance.
type rankedDoc struct {
	index    int
	distance float64
}

// SimilaritySearch ranks every stored document by cosine distance to query
// and returns the closest TopK. Score is the cosine similarity (1 - distance).
//
// The search fails on the first document without an embedding; it never skips.
// Documents at equal distance keep their insertion order.
func (s *MemoryStore) SimilaritySearch(ctx context.Context, query []float32) ([]SearchResult, error) {
	ctx, span := memoryTracer.Start(ctx, "MemoryStore.SimilaritySearch")
	defer span.End()
	span.SetAttributes(attribute.Int("top_k", s.topK))

	start := time.Now()
	results, err := s.search(query)
	s.metrics.RecordOperation(ctx, backendMemory, "similarity_search", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("searched memory store",
		zap.Int("top_k", s.topK),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func (s *MemoryStore) search(query []float32) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := make([]rankedDoc, len(s.docs))
	for i, doc := range s.docs {
		if !doc.HasEmbedding() {
			return nil, fmt.Errorf("%w: document with content %q", ErrMissingEmbedding, preview(doc.Content))
		}
		dist, err := CosineDistance(query, doc.Embedding)
		if err != nil {
			return nil, fmt.Errorf("comparing query with document %d: %w", i, err)
		}
		ranked[i] = rankedDoc{index: i, distance: dist}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].distance < ranked[b].distance
	})

	n := min(s.topK, len(ranked))
	results := make([]SearchResult, n)
	for i := 0; i < n; i++ {
		results[i] = SearchResult{
			Document: s.docs[ranked[i].index].Clone(),
			Score:    1 - ranked[i].distance,
		}
	}
	return results, nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// TopK returns the configured result limit.
func (s *MemoryStore) TopK() int {
	return s.topK
}

// ScoreKind returns ScoreSimilarity.
func (s *MemoryStore) ScoreKind() ScoreKind {
	return ScoreSimilarity
}

// Close is a no-op; the store holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}

// preview truncates content for error messages.
func preview(content string) string {
	r := []rune(content)
	if len(r) <= contentPreviewSize {
		return content
	}
	return string(r[:contentPreviewSize]) + "..."
}
