package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	backendQdrant = "qdrant"

	defaultQdrantHost       = "localhost"
	defaultQdrantPort       = 6334
	defaultQdrantCollection = "ragstore_default"
	defaultQdrantTopK       = 5
	defaultQdrantMaxMsgSize = 50 * 1024 * 1024

	// Payload keys. The caller's ID is kept in the payload because Qdrant
	// point IDs must be UUIDs or integers.
	payloadID      = "id"
	payloadContent = "content"
)

var qdrantTracer = otel.Tracer("ragstore.vectorstore.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	// Default: "localhost"
	Host string `koanf:"host"`

	// Port is the gRPC port (not the 6333 REST port).
	// Default: 6334
	Port int `koanf:"port"`

	// Collection is the collection name.
	// Default: "ragstore_default"
	Collection string `koanf:"collection"`

	// VectorSize is the embedding dimension. Required.
	VectorSize uint64 `koanf:"vector_size"`

	// TopK is the maximum number of search results.
	// Default: 5
	TopK int `koanf:"top_k"`

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// APIKey is sent with every request when set.
	APIKey string `koanf:"api_key"`

	// AutoCreate creates the collection with cosine distance on startup
	// when it does not exist.
	AutoCreate bool `koanf:"auto_create"`

	// MaxMessageSize bounds gRPC messages in bytes.
	// Default: 50MB
	MaxMessageSize int `koanf:"max_message_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = defaultQdrantHost
	}
	if c.Port == 0 {
		c.Port = defaultQdrantPort
	}
	if c.Collection == "" {
		c.Collection = defaultQdrantCollection
	}
	if c.TopK == 0 {
		c.TopK = defaultQdrantTopK
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaultQdrantMaxMsgSize
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, c.TopK)
	}
	return ValidateCollectionName(c.Collection)
}

// qdrantClient is the subset of *qdrant.Client used by QdrantStore.
type qdrantClient interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// QdrantStore is a Store backed by a Qdrant collection over gRPC.
//
// Qdrant ranks with its own HNSW index, so results may differ slightly from
// an exhaustive scan. Scores are cosine similarities. Nothing is retried;
// every gRPC failure surfaces as ErrTransport.
type QdrantStore struct {
	client  qdrantClient
	config  QdrantConfig
	logger  *zap.Logger
	metrics *Metrics
}

// NewQdrantStore connects to Qdrant and verifies the server is reachable.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating qdrant config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %w", ErrTransport, err)
	}

	s, err := newQdrantStore(config, logger, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// newQdrantStore finishes construction around an existing client.
func newQdrantStore(config QdrantConfig, logger *zap.Logger, client qdrantClient) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating qdrant config: %w", err)
	}

	s := &QdrantStore{
		client:  client,
		config:  config,
		logger:  logger,
		metrics: NewMetrics(logger),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("health check failed: %w", transportError("health_check", err))
	}
	if config.AutoCreate {
		if err := s.EnsureCollection(ctx); err != nil {
			return nil, err
		}
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC connection uses plaintext",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		)
	}
	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
		zap.Uint64("vector_size", config.VectorSize),
		zap.Int("top_k", config.TopK),
	)
	return s, nil
}

// transportError wraps a gRPC failure as ErrTransport, keeping the status
// code. Deadline and cancellation statuses also match the context errors.
func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case grpccodes.DeadlineExceeded:
			return fmt.Errorf("%w: %s: %w: %s", ErrTransport, op, context.DeadlineExceeded, st.Message())
		case grpccodes.Canceled:
			return fmt.Errorf("%w: %s: %w: %s", ErrTransport, op, context.Canceled, st.Message())
		}
		return fmt.Errorf("%w: %s: %s: %s", ErrTransport, op, st.Code(), st.Message())
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// EnsureCollection creates the collection with cosine distance and the
// configured vector size if it does not exist yet.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int64("vector_size", int64(s.config.VectorSize)),
	)

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		err = transportError("collection_exists", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		span.SetStatus(codes.Ok, "exists")
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		err = transportError("create_collection", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", s.config.Collection),
		zap.Uint64("vector_size", s.config.VectorSize),
	)
	span.SetStatus(codes.Ok, "created")
	return nil
}

// AddDocument upserts one document.
func (s *QdrantStore) AddDocument(ctx context.Context, doc Document) error {
	return s.AddDocuments(ctx, []Document{doc})
}

// AddDocuments upserts docs as points in one request.
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil
	}

	start := time.Now()
	err := s.upsert(ctx, docs)
	s.metrics.RecordOperation(ctx, backendQdrant, "add_documents", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.metrics.RecordAdded(ctx, backendQdrant, len(docs))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted documents to qdrant",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

func (s *QdrantStore) upsert(ctx context.Context, docs []Document) error {
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		if !doc.HasEmbedding() {
			return fmt.Errorf("%w: document at index %d with content %q", ErrMissingEmbedding, i, preview(doc.Content))
		}
		if uint64(len(doc.Embedding)) != s.config.VectorSize {
			return fmt.Errorf("%w: document at index %d has %d dimensions, collection has %d",
				ErrDimensionMismatch, i, len(doc.Embedding), s.config.VectorSize)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: buildPayload(doc),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points to %s: %w", len(points), s.config.Collection, transportError("upsert", err))
	}
	return nil
}

// pointID derives a Qdrant point ID. UUIDs are used as is, other IDs map to
// a stable name-based UUID so re-adding a document overwrites it, and empty
// IDs get a random UUID.
func pointID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func buildPayload(doc Document) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		payloadContent: qdrant.NewValueString(doc.Content),
	}
	if doc.ID != "" {
		payload[payloadID] = qdrant.NewValueString(doc.ID)
	}
	if doc.SourceType != "" {
		payload[MetadataSourceType] = qdrant.NewValueString(doc.SourceType)
	}
	if doc.SourceName != "" {
		payload[MetadataSourceName] = qdrant.NewValueString(doc.SourceName)
	}
	if doc.ChunkNumber != nil {
		payload[MetadataChunkNumber] = qdrant.NewValueInt(int64(*doc.ChunkNumber))
	}
	return payload
}

// SimilaritySearch queries the collection for the TopK nearest points.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, query []float32) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.SimilaritySearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("top_k", s.config.TopK),
	)

	start := time.Now()
	results, err := s.query(ctx, query)
	s.metrics.RecordOperation(ctx, backendQdrant, "similarity_search", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func (s *QdrantStore) query(ctx context.Context, query []float32) ([]SearchResult, error) {
	if uint64(len(query)) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", ErrDimensionMismatch, len(query), s.config.VectorSize)
	}
	if err := validateVector(query); err != nil {
		return nil, err
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(s.config.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.config.Collection, transportError("query", err))
	}

	results := make([]SearchResult, len(points))
	for i, point := range points {
		results[i] = SearchResult{
			Document: parsePoint(point),
			Score:    float64(point.GetScore()),
		}
	}
	return results, nil
}

// parsePoint rebuilds a Document from a scored point. Missing payload keys
// leave the matching fields empty.
func parsePoint(point *qdrant.ScoredPoint) Document {
	var doc Document
	for k, v := range point.GetPayload() {
		switch k {
		case payloadID:
			doc.ID = v.GetStringValue()
		case payloadContent:
			doc.Content = v.GetStringValue()
		case MetadataSourceType:
			doc.SourceType = v.GetStringValue()
		case MetadataSourceName:
			doc.SourceName = v.GetStringValue()
		case MetadataChunkNumber:
			switch kind := v.GetKind().(type) {
			case *qdrant.Value_IntegerValue:
				doc.ChunkNumber = IntPtr(int(kind.IntegerValue))
			case *qdrant.Value_StringValue:
				if n, err := strconv.Atoi(kind.StringValue); err == nil {
					doc.ChunkNumber = &n
				}
			}
		}
	}

	if dense := point.GetVectors().GetVector().GetDense(); dense != nil {
		doc.Embedding = dense.GetData()
	}
	return doc
}

// TopK returns the configured result limit.
func (s *QdrantStore) TopK() int {
	return s.config.TopK
}

// ScoreKind returns ScoreSimilarity.
func (s *QdrantStore) ScoreKind() ScoreKind {
	return ScoreSimilarity
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
