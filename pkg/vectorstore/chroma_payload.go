package vectorstore

import "fmt"

// ChromaMetadata is the per-document metadata object on the wire.
// Absent values are sent as explicit nulls.
type ChromaMetadata struct {
	SourceType  *string `json:"sourceType"`
	SourceName  *string `json:"sourceName"`
	ChunkNumber *int    `json:"chunkNumber"`
}

// UpsertRequest is the column-oriented body of an upsert call.
// Index i of every array refers to the same document.
type UpsertRequest struct {
	IDs        []*string        `json:"ids"`
	Documents  []string         `json:"documents"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []ChromaMetadata `json:"metadatas"`
}

// QueryRequest is the body of a query call.
type QueryRequest struct {
	QueryEmbeddings []float32 `json:"queryEmbeddings"`
	NResults        int       `json:"nResults"`
}

// QueryResponse is the body returned by a query call. All arrays are
// parallel and ranked by the database.
type QueryResponse struct {
	IDs        []*string         `json:"ids"`
	Embeddings [][]float32       `json:"embeddings"`
	Documents  []string          `json:"documents"`
	Metadatas  []*ChromaMetadata `json:"metadatas"`
	Distances  []float64         `json:"distances"`
}

// BuildUpsertRequest maps row-oriented documents onto the four aligned
// upsert columns.
func BuildUpsertRequest(docs []Document) UpsertRequest {
	req := UpsertRequest{
		IDs:        make([]*string, len(docs)),
		Documents:  make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]ChromaMetadata, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = optionalString(doc.ID)
		req.Documents[i] = doc.Content
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = ChromaMetadata{
			SourceType:  optionalString(doc.SourceType),
			SourceName:  optionalString(doc.SourceName),
			ChunkNumber: doc.ChunkNumber,
		}
	}
	return req
}

// ParseQueryResponse rebuilds ranked results from the parallel response arrays.
//
// The number of rows is len(Distances); every other array must have the same
// length or ErrMalformedResponse is returned. A missing or null distances
// array is malformed; an empty one means no matches. Scores are the raw
// distances and the order of the response is kept.
func ParseQueryResponse(resp QueryResponse) ([]SearchResult, error) {
	if resp.Distances == nil {
		return nil, fmt.Errorf("%w: distances missing", ErrMalformedResponse)
	}
	size := len(resp.Distances)
	columns := []struct {
		name string
		n    int
	}{
		{"ids", len(resp.IDs)},
		{"embeddings", len(resp.Embeddings)},
		{"documents", len(resp.Documents)},
		{"metadatas", len(resp.Metadatas)},
	}
	for _, c := range columns {
		if c.n != size {
			return nil, fmt.Errorf("%w: %s has %d entries, distances has %d", ErrMalformedResponse, c.name, c.n, size)
		}
	}

	results := make([]SearchResult, size)
	for i := 0; i < size; i++ {
		doc := Document{
			ID:        derefString(resp.IDs[i]),
			Content:   resp.Documents[i],
			Embedding: resp.Embeddings[i],
		}
		if md := resp.Metadatas[i]; md != nil {
			doc.SourceType = derefString(md.SourceType)
			doc.SourceName = derefString(md.SourceName)
			doc.ChunkNumber = md.ChunkNumber
		}
		results[i] = SearchResult{Document: doc, Score: resp.Distances[i]}
	}
	return results, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
