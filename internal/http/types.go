package http

import "github.com/fyrsmithlabs/ragstore/pkg/vectorstore"

// DocumentPayload is the JSON form of a vectorstore.Document.
type DocumentPayload struct {
	ID          string    `json:"id,omitempty"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	SourceType  string    `json:"source_type,omitempty"`
	SourceName  string    `json:"source_name,omitempty"`
	ChunkNumber *int      `json:"chunk_number,omitempty"`
}

// AddDocumentsRequest is the request body for POST /api/v1/documents.
type AddDocumentsRequest struct {
	Documents []DocumentPayload `json:"documents"`
}

// AddDocumentsResponse is the response body for POST /api/v1/documents.
type AddDocumentsResponse struct {
	Added int `json:"added"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Embedding []float32 `json:"embedding"`
}

// SearchResultPayload is one ranked match.
type SearchResultPayload struct {
	Document DocumentPayload `json:"document"`
	Score    float64         `json:"score"`
}

// SearchResponse is the response body for POST /api/v1/search.
// ScoreKind tells the client whether higher or lower scores rank first.
type SearchResponse struct {
	ScoreKind vectorstore.ScoreKind `json:"score_kind"`
	Results   []SearchResultPayload `json:"results"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                `json:"status"`
	TopK      int                   `json:"top_k"`
	ScoreKind vectorstore.ScoreKind `json:"score_kind"`
	Documents *int                  `json:"documents,omitempty"`
}

// ToDocument converts the payload into a store document.
func (p DocumentPayload) ToDocument() vectorstore.Document {
	return vectorstore.Document{
		ID:          p.ID,
		Content:     p.Content,
		Embedding:   p.Embedding,
		SourceType:  p.SourceType,
		SourceName:  p.SourceName,
		ChunkNumber: p.ChunkNumber,
	}
}

// PayloadFromDocument converts a store document into its JSON form.
func PayloadFromDocument(doc vectorstore.Document) DocumentPayload {
	return DocumentPayload{
		ID:          doc.ID,
		Content:     doc.Content,
		Embedding:   doc.Embedding,
		SourceType:  doc.SourceType,
		SourceName:  doc.SourceName,
		ChunkNumber: doc.ChunkNumber,
	}
}
