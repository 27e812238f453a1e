package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrMissingEmbedding is returned when a document that must be ranked has no embedding.
	ErrMissingEmbedding = errors.New("document has no embedding")

	// ErrDimensionMismatch is returned when compared vectors differ in length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrZeroMagnitude is returned when cosine similarity involves a zero vector.
	ErrZeroMagnitude = errors.New("vector has zero magnitude")

	// ErrInvalidVector is returned when a vector has a NaN or infinite component.
	ErrInvalidVector = errors.New("vector has non-finite component")

	// ErrTransport indicates a network, HTTP or RPC failure talking to a remote backend.
	ErrTransport = errors.New("vector store transport error")

	// ErrMalformedResponse indicates a remote response that cannot be decoded
	// or whose parallel arrays are misaligned.
	ErrMalformedResponse = errors.New("malformed vector store response")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrUnsupportedProvider is returned by NewStore for an unknown provider.
	ErrUnsupportedProvider = errors.New("unsupported vectorstore provider")
)

// StatusError is returned when a remote backend answers with a non-2xx status.
// It unwraps to ErrTransport.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

// Store is the contract every vector store backend satisfies.
//
// Callers hold a Store and never a concrete backend type. All methods block
// until the backend has finished; implementations are safe for concurrent use.
//
// Implementations:
//   - MemoryStore: in-process brute force (ScoreSimilarity)
//   - ChromaStore: remote Chroma-style HTTP API (ScoreDistance)
//   - ChromemStore: embedded chromem-go (ScoreSimilarity)
//   - QdrantStore: remote Qdrant over gRPC (ScoreSimilarity)
type Store interface {
	// AddDocument inserts one document. Equivalent to AddDocuments with a
	// single-element batch.
	AddDocument(ctx context.Context, doc Document) error

	// AddDocuments inserts a batch. The batch is not atomic: on failure the
	// stored state is backend-defined. An empty batch is a no-op.
	AddDocuments(ctx context.Context, docs []Document) error

	// SimilaritySearch returns up to TopK documents ordered most similar first.
	//
	// Returns ErrDimensionMismatch when vectors differ in length,
	// ErrMissingEmbedding when a stored document cannot be ranked,
	// ErrTransport or ErrMalformedResponse for remote failures.
	SimilaritySearch(ctx context.Context, query []float32) ([]SearchResult, error)

	// TopK is the maximum number of results a search returns.
	TopK() int

	// ScoreKind reports how SearchResult.Score must be interpreted.
	ScoreKind() ScoreKind

	// Close releases resources held by the store.
	Close() error
}

// Counter is implemented by stores that can report how many documents they hold.
type Counter interface {
	Len() int
}

// collectionNamePattern follows Chroma's rules: 3-63 characters, starting and
// ending with an alphanumeric, with dots, underscores and hyphens inside.
var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{1,61}[a-zA-Z0-9]$`)

// ValidateCollectionName validates a collection name before it is placed in a
// URL path or sent to a remote database.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match %s, got %q", ErrInvalidCollectionName, collectionNamePattern, name)
	}
	return nil
}

// resolveTopK applies the backend default for zero and rejects negatives.
func resolveTopK(topK, def int) (int, error) {
	if topK == 0 {
		return def, nil
	}
	if topK < 0 {
		return 0, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, topK)
	}
	return topK, nil
}
