package bootstrap

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragstore/pkg/config"
	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore"
	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore/chromatest"
)

func TestOpen_MemoryDefault(t *testing.T) {
	ctx := context.Background()
	logs := &bytes.Buffer{}

	rt, err := Open(ctx, Options{Config: config.Default(), LogWriter: zapcore.AddSync(logs)})
	require.NoError(t, err)

	store := rt.Store()
	assert.IsType(t, &vectorstore.MemoryStore{}, store)
	assert.Equal(t, 4, store.TopK())
	assert.False(t, rt.Telemetry().IsEnabled())
	assert.Equal(t, "memory", rt.Config().VectorStore.ProviderName())

	require.NoError(t, store.AddDocuments(ctx, []vectorstore.Document{
		{ID: "D1", Content: "Cats are small carnivorous mammals.", Embedding: []float32{1, 0, 0}},
		{ID: "D2", Content: "Dogs are domesticated wolves.", Embedding: []float32{0, 1, 0}},
	}))
	results, err := store.SimilaritySearch(ctx, []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "D1", results[0].Document.ID)

	rec := httptest.NewRecorder()
	rt.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ragstore_vectorstore_documents{backend="memory"} 2`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	assert.Contains(t, logs.String(), "ragstore runtime ready")

	require.NoError(t, rt.Close(ctx))
	require.NoError(t, rt.Close(ctx))
	assert.Contains(t, logs.String(), "ragstore runtime closing")
}

func TestOpen_Chroma(t *testing.T) {
	ctx := context.Background()
	srv := chromatest.NewServer(nil)
	defer srv.Close()

	cfg := config.Default()
	cfg.VectorStore = vectorstore.Config{
		Provider: vectorstore.ProviderChroma,
		Chroma:   vectorstore.ChromaConfig{Host: srv.URL(), Collection: "docs", TopK: 1},
	}
	logs := &bytes.Buffer{}

	rt, err := Open(ctx, Options{
		Config:       cfg,
		LogWriter:    zapcore.AddSync(logs),
		StoreOptions: []vectorstore.FactoryOption{vectorstore.WithChromaOptions(vectorstore.WithHTTPClient(srv.Client()))},
	})
	require.NoError(t, err)
	defer rt.Close(ctx)

	assert.Equal(t, vectorstore.ScoreDistance, rt.Store().ScoreKind())
	require.NoError(t, rt.Store().AddDocument(ctx, vectorstore.Document{ID: "a", Content: "a", Embedding: []float32{1, 0}}))

	results, err := rt.Store().SimilaritySearch(ctx, []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, 1, srv.Requests("query"))

	assert.Contains(t, logs.String(), `"collection":"docs"`)

	// Remote stores report no local document count.
	rec := httptest.NewRecorder()
	rt.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.NotContains(t, rec.Body.String(), "ragstore_vectorstore_documents{")
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Provider = "pinecone"

	rt, err := Open(context.Background(), Options{Config: cfg})
	assert.ErrorIs(t, err, vectorstore.ErrUnsupportedProvider)
	assert.Nil(t, rt)
}

func TestOpen_StoreFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	cfg := config.Default()
	cfg.VectorStore = vectorstore.Config{
		Provider: vectorstore.ProviderChromem,
		Chromem:  vectorstore.ChromemConfig{Path: filepath.Join(blocker, "db")},
	}
	logs := &bytes.Buffer{}

	rt, err := Open(context.Background(), Options{Config: cfg, LogWriter: zapcore.AddSync(logs)})
	require.Error(t, err)
	assert.Nil(t, rt)
	assert.Contains(t, err.Error(), "failed to create vector store")
	assert.Contains(t, logs.String(), "failed to create vector store")
}

func TestOpen_ConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "ragstore")
	require.NoError(t, os.MkdirAll(dir, 0700))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vectorstore:
  provider: memory
  memory:
    top_k: 9
logging:
  level: warn
`), 0600))

	rt, err := Open(context.Background(), Options{ConfigPath: path, LogWriter: zapcore.AddSync(&bytes.Buffer{})})
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Equal(t, 9, rt.Store().TopK())
	assert.False(t, rt.Logger().Enabled(zapcore.InfoLevel))
	assert.NotNil(t, rt.Registry())
}
