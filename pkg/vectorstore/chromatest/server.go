// Package chromatest provides an in-process fake of the Chroma-style
// collection API spoken by vectorstore.ChromaStore.
//
// The fake keeps collections in memory, ranks queries by cosine distance and
// can be told to fail or corrupt its next response:
//
//	srv := chromatest.NewServer(logger)
//	defer srv.Close()
//	store, err := vectorstore.NewChromaStore(vectorstore.ChromaConfig{
//	    Host:       srv.URL(),
//	    Collection: "docs",
//	}, logger)
package chromatest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore"
)

// Record is one stored row of a fake collection.
type Record struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  vectorstore.ChromaMetadata
}

// failure is a canned response for the next request.
type failure struct {
	status  int
	body    string
	corrupt bool
}

// ErrorResponse is the body of error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is a fake collection API backed by httptest.
type Server struct {
	echo   *echo.Echo
	http   *httptest.Server
	logger *zap.Logger

	mu          sync.Mutex
	collections map[string][]Record
	pending     []failure
	requests    map[string]int
	lastUpsert  *vectorstore.UpsertRequest
	lastQuery   *vectorstore.QueryRequest
}

// NewServer starts a fake server on a loopback port.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		logger:      logger,
		collections: make(map[string][]Record),
		requests:    make(map[string]int),
	}
	s.registerRoutes()
	s.http = httptest.NewServer(e)
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.echo.Group("/api/v1/collections/:collection")
	v1.Use(s.countRequests, s.injectFailures)
	v1.POST("/upsert", s.handleUpsert)
	v1.POST("/query", s.handleQuery)
}

// URL returns the base URL of the server.
func (s *Server) URL() string {
	return s.http.URL
}

// Client returns an HTTP client configured for the server.
func (s *Server) Client() *http.Client {
	return s.http.Client()
}

// Close shuts the server down.
func (s *Server) Close() {
	s.http.Close()
}

// FailNext makes the next request answer with status and body.
func (s *Server) FailNext(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, failure{status: status, body: body})
}

// CorruptNext makes the next query answer with misaligned arrays.
func (s *Server) CorruptNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, failure{corrupt: true})
}

// Records returns a copy of the rows stored in collection.
func (s *Server) Records(collection string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.collections[collection]...)
}

// Requests returns how many requests reached the endpoint op ("upsert" or "query").
func (s *Server) Requests(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[op]
}

// LastUpsert returns the most recently received upsert body, or nil.
func (s *Server) LastUpsert() *vectorstore.UpsertRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpsert
}

// LastQuery returns the most recently received query body, or nil.
func (s *Server) LastQuery() *vectorstore.QueryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery
}

func (s *Server) countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		s.requests[opName(c.Path())]++
		s.mu.Unlock()
		return next(c)
	}
}

func (s *Server) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		var (
			f      failure
			inject bool
		)
		if len(s.pending) > 0 && !s.pending[0].corrupt {
			f, inject = s.pending[0], true
			s.pending = s.pending[1:]
		}
		s.mu.Unlock()

		if inject {
			s.logger.Debug("injecting failure", zap.String("path", c.Path()), zap.Int("status", f.status))
			return c.String(f.status, f.body)
		}
		return next(c)
	}
}

func opName(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

func (s *Server) handleUpsert(c echo.Context) error {
	var req vectorstore.UpsertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	n := len(req.Documents)
	if len(req.IDs) != n || len(req.Embeddings) != n || len(req.Metadatas) != n {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "column lengths differ"})
	}

	name := c.Param("collection")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUpsert = &req
	rows := s.collections[name]
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		if req.IDs[i] != nil {
			id = *req.IDs[i]
		}
		rec := Record{
			ID:        id,
			Content:   req.Documents[i],
			Embedding: req.Embeddings[i],
			Metadata:  req.Metadatas[i],
		}
		if idx := indexOf(rows, id); idx >= 0 {
			rows[idx] = rec
		} else {
			rows = append(rows, rec)
		}
	}
	s.collections[name] = rows

	s.logger.Debug("upserted records", zap.String("collection", name), zap.Int("count", n))
	return c.JSON(http.StatusOK, true)
}

func indexOf(rows []Record, id string) int {
	for i, r := range rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

type scoredRecord struct {
	record   Record
	distance float64
}

func (s *Server) handleQuery(c echo.Context) error {
	var req vectorstore.QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.NResults <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "nResults must be positive"})
	}

	name := c.Param("collection")

	s.mu.Lock()
	s.lastQuery = &req
	rows := append([]Record(nil), s.collections[name]...)
	corrupt := len(s.pending) > 0 && s.pending[0].corrupt
	if corrupt {
		s.pending = s.pending[1:]
	}
	s.mu.Unlock()

	scored := make([]scoredRecord, len(rows))
	for i, r := range rows {
		d, err := vectorstore.CosineDistance(req.QueryEmbeddings, r.Embedding)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		scored[i] = scoredRecord{record: r, distance: d}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].distance < scored[b].distance
	})
	if len(scored) > req.NResults {
		scored = scored[:req.NResults]
	}

	resp := vectorstore.QueryResponse{
		IDs:        make([]*string, len(scored)),
		Embeddings: make([][]float32, len(scored)),
		Documents:  make([]string, len(scored)),
		Metadatas:  make([]*vectorstore.ChromaMetadata, len(scored)),
		Distances:  make([]float64, len(scored)),
	}
	for i, sr := range scored {
		id := sr.record.ID
		md := sr.record.Metadata
		resp.IDs[i] = &id
		resp.Embeddings[i] = sr.record.Embedding
		resp.Documents[i] = sr.record.Content
		resp.Metadatas[i] = &md
		resp.Distances[i] = sr.distance
	}

	if corrupt {
		resp.Documents = append(resp.Documents, "extra")
	}
	return c.JSON(http.StatusOK, resp)
}
