// Package vectorstore provides similarity search over embedded documents.
//
// Every backend satisfies the Store interface, so a retrieval pipeline can add
// documents and run nearest-neighbor queries without knowing which backend is
// active. Callers supply embeddings; no backend generates them.
//
// # Backends
//
// MemoryStore (default):
//   - Brute-force linear scan over an in-process slice
//   - Exact cosine similarity, stable ordering under ties
//   - Process lifetime only, no persistence
//
// ChromaStore:
//   - Protocol adapter for a remote Chroma-style collection API
//   - Row-oriented documents mapped onto columnar upsert/query payloads
//   - Scores are raw distances as reported by the database
//
// ChromemStore:
//   - Embedded chromem-go collection, optionally persisted to disk
//
// QdrantStore:
//   - Remote Qdrant collection over gRPC (HNSW index)
//
// # Scores
//
// Score semantics differ per backend and are reported by Store.ScoreKind:
//
//	ScoreSimilarity: higher is more similar (memory, chromem, qdrant)
//	ScoreDistance:   lower is more similar (chroma)
//
// Scores from different backends are not comparable without normalization.
//
// # Usage
//
//	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{TopK: 4}, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.AddDocuments(ctx, []vectorstore.Document{
//	    {ID: "intro-0", Content: "hello", Embedding: vec},
//	})
//
//	results, err := store.SimilaritySearch(ctx, queryVec)
//	for _, r := range results {
//	    fmt.Println(r.Document.ID, r.Score)
//	}
package vectorstore
