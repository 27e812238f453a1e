package vectorstore

import "strconv"

// Metadata keys shared by the remote backends.
const (
	MetadataSourceType  = "sourceType"
	MetadataSourceName  = "sourceName"
	MetadataChunkNumber = "chunkNumber"
)

// Document is the unit of storage and retrieval.
type Document struct {
	// ID is optional. Empty means the backend assigns one or treats the
	// document as anonymous.
	ID string

	// Content is the text payload.
	Content string

	// Embedding is the document vector. Nil until the caller computes it.
	Embedding []float32

	// SourceType and SourceName describe provenance. Empty means absent.
	SourceType string
	SourceName string

	// ChunkNumber is the position of this fragment within its source.
	ChunkNumber *int
}

// HasEmbedding reports whether the document carries a vector.
func (d Document) HasEmbedding() bool {
	return len(d.Embedding) > 0
}

// Clone returns a copy that shares no mutable state with d.
func (d Document) Clone() Document {
	out := d
	if d.Embedding != nil {
		out.Embedding = append([]float32(nil), d.Embedding...)
	}
	if d.ChunkNumber != nil {
		n := *d.ChunkNumber
		out.ChunkNumber = &n
	}
	return out
}

// metadata returns the provenance fields as a string map. Absent fields are omitted.
func (d Document) metadata() map[string]string {
	m := make(map[string]string, 3)
	if d.SourceType != "" {
		m[MetadataSourceType] = d.SourceType
	}
	if d.SourceName != "" {
		m[MetadataSourceName] = d.SourceName
	}
	if d.ChunkNumber != nil {
		m[MetadataChunkNumber] = strconv.Itoa(*d.ChunkNumber)
	}
	return m
}

// applyMetadata fills provenance fields from a string map.
// Unknown keys are ignored and a malformed chunk number is left unset.
func (d *Document) applyMetadata(m map[string]string) {
	d.SourceType = m[MetadataSourceType]
	d.SourceName = m[MetadataSourceName]
	if raw, ok := m[MetadataChunkNumber]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			d.ChunkNumber = &n
		}
	}
}

// SearchResult is a ranked match returned by SimilaritySearch.
//
// Document is a copy owned by the caller; mutating it never affects the store.
type SearchResult struct {
	Document Document

	// Score is the rank signal. Its meaning depends on the backend's ScoreKind.
	Score float64
}

// ScoreKind describes how a backend's scores are ordered.
type ScoreKind string

const (
	// ScoreSimilarity means higher scores are more similar (cosine in [-1, 1]).
	ScoreSimilarity ScoreKind = "similarity"

	// ScoreDistance means lower scores are more similar. The value is the raw
	// metric reported by the database.
	ScoreDistance ScoreKind = "distance"
)

// IntPtr returns a pointer to n. Convenient for Document.ChunkNumber.
func IntPtr(n int) *int {
	return &n
}
