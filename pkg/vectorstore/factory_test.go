package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore"
	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore/chromatest"
)

func TestNewStore(t *testing.T) {
	srv := chromatest.NewServer(nil)
	defer srv.Close()

	tests := []struct {
		name      string
		cfg       vectorstore.Config
		wantType  any
		wantTopK  int
		wantScore vectorstore.ScoreKind
	}{
		{
			name:      "default is memory",
			cfg:       vectorstore.Config{},
			wantType:  &vectorstore.MemoryStore{},
			wantTopK:  4,
			wantScore: vectorstore.ScoreSimilarity,
		},
		{
			name:      "memory with top k",
			cfg:       vectorstore.Config{Provider: "memory", Memory: vectorstore.MemoryConfig{TopK: 7}},
			wantType:  &vectorstore.MemoryStore{},
			wantTopK:  7,
			wantScore: vectorstore.ScoreSimilarity,
		},
		{
			name:      "chroma",
			cfg:       vectorstore.Config{Provider: "chroma", Chroma: vectorstore.ChromaConfig{Host: srv.URL(), Collection: "docs"}},
			wantType:  &vectorstore.ChromaStore{},
			wantTopK:  5,
			wantScore: vectorstore.ScoreDistance,
		},
		{
			name:      "chromem case insensitive",
			cfg:       vectorstore.Config{Provider: "Chromem"},
			wantType:  &vectorstore.ChromemStore{},
			wantTopK:  4,
			wantScore: vectorstore.ScoreSimilarity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.cfg.Validate())

			store, err := vectorstore.NewStore(tt.cfg, zap.NewNop())
			require.NoError(t, err)
			defer store.Close()

			assert.IsType(t, tt.wantType, store)
			assert.Equal(t, tt.wantTopK, store.TopK())
			assert.Equal(t, tt.wantScore, store.ScoreKind())
		})
	}
}

func TestNewStore_UnsupportedProvider(t *testing.T) {
	cfg := vectorstore.Config{Provider: "pinecone"}

	assert.ErrorIs(t, cfg.Validate(), vectorstore.ErrUnsupportedProvider)

	store, err := vectorstore.NewStore(cfg, nil)
	assert.ErrorIs(t, err, vectorstore.ErrUnsupportedProvider)
	assert.Nil(t, store)
}

func TestNewStore_InvalidBackendConfig(t *testing.T) {
	cfg := vectorstore.Config{Provider: "chroma"}

	assert.ErrorIs(t, cfg.Validate(), vectorstore.ErrInvalidCollectionName)

	store, err := vectorstore.NewStore(cfg, nil)
	require.Error(t, err)
	assert.Nil(t, store)

	qcfg := vectorstore.Config{Provider: "qdrant"}
	assert.ErrorIs(t, qcfg.Validate(), vectorstore.ErrInvalidConfig)
}

func TestNewStore_ChromaOptions(t *testing.T) {
	srv := chromatest.NewServer(nil)
	defer srv.Close()

	store, err := vectorstore.NewStore(vectorstore.Config{
		Provider: "chroma",
		Chroma:   vectorstore.ChromaConfig{Host: srv.URL(), Collection: "docs"},
	}, nil, vectorstore.WithChromaOptions(vectorstore.WithHTTPClient(srv.Client())))
	require.NoError(t, err)

	require.NoError(t, store.AddDocument(context.Background(), vectorstore.Document{
		ID: "a", Content: "a", Embedding: []float32{1},
	}))
	assert.Equal(t, 1, srv.Requests("upsert"))
}
