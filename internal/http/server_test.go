package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/pkg/config"
	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore"
	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore/chromatest"
)

func newMemoryStore(t *testing.T, topK int) *vectorstore.MemoryStore {
	t.Helper()
	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{TopK: topK}, nil)
	require.NoError(t, err)
	return store
}

func newTestServer(t *testing.T, store vectorstore.Store, opts ...Option) *Server {
	t.Helper()
	server, err := NewServer(store, zap.NewNop(), nil, opts...)
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	store := newMemoryStore(t, 0)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(store, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost:9090", server.Addr())
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(store, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when store is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store cannot be nil")
	})

	t.Run("maps config section", func(t *testing.T) {
		cfg := FromSection(config.ServerConfig{Host: "0.0.0.0", Port: 8080, MaxBodyBytes: 1024})
		server, err := NewServer(store, zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:8080", server.Addr())
		assert.Equal(t, int64(1024), server.config.MaxBodyBytes)
	})
}

func TestServer_Health(t *testing.T) {
	store := newMemoryStore(t, 3)
	require.NoError(t, store.AddDocument(context.Background(), vectorstore.Document{Content: "x", Embedding: []float32{1}}))
	server := newTestServer(t, store)

	rec := doJSON(t, server.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.TopK)
	assert.Equal(t, vectorstore.ScoreSimilarity, resp.ScoreKind)
	require.NotNil(t, resp.Documents)
	assert.Equal(t, 1, *resp.Documents)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_AddAndSearch(t *testing.T) {
	store := newMemoryStore(t, 2)
	server := newTestServer(t, store)
	h := server.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/documents", AddDocumentsRequest{
		Documents: []DocumentPayload{
			{ID: "D1", Content: "Cats are small carnivorous mammals.", Embedding: []float32{1, 0, 0}, SourceType: "file", SourceName: "cats.txt", ChunkNumber: vectorstore.IntPtr(0)},
			{ID: "D2", Content: "Dogs are domesticated wolves.", Embedding: []float32{0, 1, 0}},
			{ID: "D3", Content: "Kittens are young cats.", Embedding: []float32{0.9, 0.1, 0}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var added AddDocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	assert.Equal(t, 3, added.Added)
	assert.Equal(t, 3, store.Len())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/search", SearchRequest{Embedding: []float32{1, 0, 0}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, vectorstore.ScoreSimilarity, resp.ScoreKind)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "D1", resp.Results[0].Document.ID)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	assert.Equal(t, "cats.txt", resp.Results[0].Document.SourceName)
	require.NotNil(t, resp.Results[0].Document.ChunkNumber)
	assert.Equal(t, 0, *resp.Results[0].Document.ChunkNumber)
	assert.Equal(t, "D3", resp.Results[1].Document.ID)
}

func TestServer_BadRequests(t *testing.T) {
	server := newTestServer(t, newMemoryStore(t, 0))
	h := server.Handler()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		msg    string
	}{
		{name: "malformed documents", path: "/api/v1/documents", body: "{", status: http.StatusBadRequest, msg: "invalid request body"},
		{name: "empty documents", path: "/api/v1/documents", body: `{"documents":[]}`, status: http.StatusBadRequest, msg: "documents field is required"},
		{name: "malformed search", path: "/api/v1/search", body: "[", status: http.StatusBadRequest, msg: "invalid request body"},
		{name: "missing embedding", path: "/api/v1/search", body: `{}`, status: http.StatusBadRequest, msg: "embedding field is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.msg)
		})
	}
}

func TestServer_StoreErrors(t *testing.T) {
	t.Run("dimension mismatch is unprocessable", func(t *testing.T) {
		store := newMemoryStore(t, 0)
		require.NoError(t, store.AddDocument(context.Background(), vectorstore.Document{Content: "x", Embedding: []float32{1, 0}}))
		server := newTestServer(t, store)

		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/search", SearchRequest{Embedding: []float32{1, 0, 0}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "dimension mismatch")
	})

	t.Run("missing embedding is unprocessable", func(t *testing.T) {
		store := newMemoryStore(t, 0)
		require.NoError(t, store.AddDocument(context.Background(), vectorstore.Document{Content: "no vector"}))
		server := newTestServer(t, store)

		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/search", SearchRequest{Embedding: []float32{1}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("remote failure is bad gateway", func(t *testing.T) {
		srv := chromatest.NewServer(nil)
		defer srv.Close()
		store, err := vectorstore.NewChromaStore(vectorstore.ChromaConfig{Host: srv.URL(), Collection: "docs"}, nil,
			vectorstore.WithHTTPClient(srv.Client()))
		require.NoError(t, err)

		core, logs := observer.New(zapcore.InfoLevel)
		server, err := NewServer(store, zap.New(core), nil)
		require.NoError(t, err)

		srv.FailNext(http.StatusInternalServerError, "boom")
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/search", SearchRequest{Embedding: []float32{1, 0}})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		failures := logs.FilterMessage("vector store request failed").All()
		require.Len(t, failures, 1)
		assert.NotEmpty(t, failures[0].ContextMap()["request.id"])
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", vectorstore.ErrDimensionMismatch), http.StatusUnprocessableEntity},
		{vectorstore.ErrZeroMagnitude, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrap: %w", vectorstore.ErrInvalidVector), http.StatusUnprocessableEntity},
		{&vectorstore.StatusError{StatusCode: 503}, http.StatusBadGateway},
		{vectorstore.ErrMalformedResponse, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: query: %w", vectorstore.ErrTransport, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

// recordingStore captures the context passed to the store.
type recordingStore struct {
	*vectorstore.MemoryStore
	requestID string
}

func (s *recordingStore) AddDocuments(ctx context.Context, docs []vectorstore.Document) error {
	s.requestID = logging.RequestIDFromContext(ctx)
	return s.MemoryStore.AddDocuments(ctx, docs)
}

func TestServer_RequestIDReachesStore(t *testing.T) {
	store := &recordingStore{MemoryStore: newMemoryStore(t, 0)}
	server := newTestServer(t, store)

	body := `{"documents":[{"content":"a","embedding":[1]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", store.requestID)
}

func TestServer_BodyLimit(t *testing.T) {
	server, err := NewServer(newMemoryStore(t, 0), zap.NewNop(), &Config{Host: "localhost", MaxBodyBytes: 16})
	require.NoError(t, err)

	body := `{"documents":[{"content":"this body is longer than sixteen bytes"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := newTestServer(t, newMemoryStore(t, 0))
	rec := doJSON(t, server.Handler(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ragstore_up 1\n"))
	})
	server = newTestServer(t, newMemoryStore(t, 0), WithMetricsHandler(handler))
	rec = doJSON(t, server.Handler(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ragstore_up 1\n", rec.Body.String())
}

func TestServer_LogsRequests(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	server, err := NewServer(newMemoryStore(t, 0), zap.New(core), nil)
	require.NoError(t, err)

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/search", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusBadRequest), fields["status"])
	assert.Equal(t, "/api/v1/search", fields["uri"])
}
