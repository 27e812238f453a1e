package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Embedder turns text into vectors. Any langchaingo embeddings.Embedder
// satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var _ Embedder = embeddings.Embedder(nil)

// ErrUnsupportedOption is returned by LangchainStore for vectorstores options
// the underlying Store cannot honor.
var ErrUnsupportedOption = errors.New("unsupported vector store option")

// LangchainStore adapts a Store to langchaingo's vectorstores.VectorStore so
// it can back chains and retrievers.
//
// Text is embedded with the configured Embedder, or with the Embedder passed
// through vectorstores.WithEmbedder for a single call. Document metadata keys
// "id", "sourceType", "sourceName" and "chunkNumber" map onto Document fields;
// other keys are dropped.
type LangchainStore struct {
	store    Store
	embedder Embedder
}

var _ vectorstores.VectorStore = (*LangchainStore)(nil)

// NewLangchainStore wraps store. embedder may be nil when every call passes
// vectorstores.WithEmbedder.
func NewLangchainStore(store Store, embedder Embedder) *LangchainStore {
	return &LangchainStore{store: store, embedder: embedder}
}

// AddDocuments embeds and stores docs, returning their IDs. Documents without
// an "id" metadata entry receive a random UUID.
func (l *LangchainStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := l.options(options)
	if opts.NameSpace != "" || opts.Filters != nil {
		return nil, fmt.Errorf("%w: namespaces and filters", ErrUnsupportedOption)
	}
	embedder, err := l.resolveEmbedder(opts)
	if err != nil {
		return nil, err
	}

	kept := make([]schema.Document, 0, len(docs))
	for _, doc := range docs {
		if opts.Deduplicater != nil && opts.Deduplicater(ctx, doc) {
			continue
		}
		kept = append(kept, doc)
	}
	if len(kept) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(kept))
	for i, doc := range kept {
		texts[i] = doc.PageContent
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d documents: %w", len(texts), err)
	}
	if len(vectors) != len(kept) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(kept))
	}

	ids := make([]string, len(kept))
	out := make([]Document, len(kept))
	for i, doc := range kept {
		d := fromSchemaDocument(doc)
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.Embedding = vectors[i]
		out[i] = d
		ids[i] = d.ID
	}

	if err := l.store.AddDocuments(ctx, out); err != nil {
		return nil, err
	}
	return ids, nil
}

// SimilaritySearch embeds query and returns at most numDocuments matches.
// numDocuments below one means no limit beyond the store's TopK.
//
// vectorstores.WithScoreThreshold is honored only by stores reporting
// ScoreSimilarity; distance stores reject it.
func (l *LangchainStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := l.options(options)
	if opts.NameSpace != "" || opts.Filters != nil {
		return nil, fmt.Errorf("%w: namespaces and filters", ErrUnsupportedOption)
	}
	if opts.ScoreThreshold < 0 || opts.ScoreThreshold > 1 {
		return nil, fmt.Errorf("%w: score threshold %v outside [0, 1]", ErrUnsupportedOption, opts.ScoreThreshold)
	}
	if opts.ScoreThreshold != 0 && l.store.ScoreKind() != ScoreSimilarity {
		return nil, fmt.Errorf("%w: score threshold on a %s store", ErrUnsupportedOption, l.store.ScoreKind())
	}
	embedder, err := l.resolveEmbedder(opts)
	if err != nil {
		return nil, err
	}

	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := l.store.SimilaritySearch(ctx, vector)
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		if numDocuments > 0 && len(docs) == numDocuments {
			break
		}
		if opts.ScoreThreshold != 0 && r.Score < float64(opts.ScoreThreshold) {
			continue
		}
		docs = append(docs, toSchemaDocument(r))
	}
	return docs, nil
}

func (l *LangchainStore) options(options []vectorstores.Option) vectorstores.Options {
	var opts vectorstores.Options
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func (l *LangchainStore) resolveEmbedder(opts vectorstores.Options) (Embedder, error) {
	if opts.Embedder != nil {
		return opts.Embedder, nil
	}
	if l.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrInvalidConfig)
	}
	return l.embedder, nil
}

func fromSchemaDocument(doc schema.Document) Document {
	d := Document{Content: doc.PageContent}
	for k, v := range doc.Metadata {
		switch k {
		case payloadID:
			d.ID = fmt.Sprint(v)
		case MetadataSourceType:
			d.SourceType = fmt.Sprint(v)
		case MetadataSourceName:
			d.SourceName = fmt.Sprint(v)
		case MetadataChunkNumber:
			d.ChunkNumber = chunkNumberFrom(v)
		}
	}
	return d
}

func chunkNumberFrom(v any) *int {
	switch n := v.(type) {
	case int:
		return IntPtr(n)
	case int32:
		return IntPtr(int(n))
	case int64:
		return IntPtr(int(n))
	case float64:
		return IntPtr(int(n))
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return &i
		}
	}
	return nil
}

func toSchemaDocument(r SearchResult) schema.Document {
	md := make(map[string]any, 4)
	if r.Document.ID != "" {
		md[payloadID] = r.Document.ID
	}
	if r.Document.SourceType != "" {
		md[MetadataSourceType] = r.Document.SourceType
	}
	if r.Document.SourceName != "" {
		md[MetadataSourceName] = r.Document.SourceName
	}
	if r.Document.ChunkNumber != nil {
		md[MetadataChunkNumber] = *r.Document.ChunkNumber
	}
	return schema.Document{
		PageContent: r.Document.Content,
		Metadata:    md,
		Score:       float32(r.Score),
	}
}
