package vectorstore

import (
	"context"
	"fmt"
	"math"
)

// QualityMetrics holds retrieval quality measurements for one or more queries.
type QualityMetrics struct {
	// NDCG is normalized discounted cumulative gain in [0, 1].
	NDCG float64

	// MRR is the reciprocal rank of the first relevant result in [0, 1].
	MRR float64

	// PrecisionAtK is the share of relevant documents among the top K.
	PrecisionAtK float64

	// K is the cutoff used.
	K int
}

// CalculateNDCG computes NDCG@k of results against expectedRanking, the ideal
// order of document IDs (most relevant first). Relevance is graded linearly:
// the first expected ID scores len(expectedRanking), the last scores 1 and
// IDs outside the ranking score 0.
//
// Returns 0 for empty inputs or k <= 0.
func CalculateNDCG(results []SearchResult, expectedRanking []string, k int) float64 {
	if len(results) == 0 || len(expectedRanking) == 0 || k <= 0 {
		return 0
	}

	n := len(expectedRanking)
	relevance := make(map[string]float64, n)
	for i, id := range expectedRanking {
		relevance[id] = float64(n - i)
	}

	var dcg float64
	for i := 0; i < min(k, len(results)); i++ {
		dcg += relevance[results[i].Document.ID] / discount(i)
	}

	var idcg float64
	for i := 0; i < min(k, n); i++ {
		idcg += float64(n-i) / discount(i)
	}

	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// discount is the log2 position discount for a zero-based rank.
func discount(rank int) float64 {
	return math.Log2(float64(rank + 2))
}

// CalculateMRR returns 1/rank of the first result whose ID is in relevantDocs,
// or 0 when none is.
func CalculateMRR(results []SearchResult, relevantDocs []string) float64 {
	relevant := idSet(relevantDocs)
	for i, r := range results {
		if relevant[r.Document.ID] {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// CalculatePrecisionAtK returns the share of the top k results whose ID is in
// relevantDocs. k is capped at len(results).
func CalculatePrecisionAtK(results []SearchResult, relevantDocs []string, k int) float64 {
	if len(results) == 0 || len(relevantDocs) == 0 || k <= 0 {
		return 0
	}
	k = min(k, len(results))

	relevant := idSet(relevantDocs)
	hits := 0
	for _, r := range results[:k] {
		if relevant[r.Document.ID] {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// CalculateAllMetrics computes NDCG, MRR and Precision@K for one result list.
func CalculateAllMetrics(results []SearchResult, expectedRanking, relevantDocs []string, k int) QualityMetrics {
	return QualityMetrics{
		NDCG:         CalculateNDCG(results, expectedRanking, k),
		MRR:          CalculateMRR(results, relevantDocs),
		PrecisionAtK: CalculatePrecisionAtK(results, relevantDocs, k),
		K:            k,
	}
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// EvalCase is one labelled query for Evaluate.
type EvalCase struct {
	Query []float32

	// ExpectedRanking is the ideal order of document IDs for NDCG.
	ExpectedRanking []string

	// Relevant is the set of relevant document IDs for MRR and precision.
	// Defaults to ExpectedRanking when empty.
	Relevant []string
}

// Evaluate runs every case against store and returns metrics averaged over
// the cases, using the store's TopK as the cutoff.
func Evaluate(ctx context.Context, store Store, cases []EvalCase) (QualityMetrics, error) {
	k := store.TopK()
	total := QualityMetrics{K: k}
	if len(cases) == 0 {
		return total, nil
	}

	for i, c := range cases {
		results, err := store.SimilaritySearch(ctx, c.Query)
		if err != nil {
			return QualityMetrics{}, fmt.Errorf("evaluating case %d: %w", i, err)
		}
		relevant := c.Relevant
		if len(relevant) == 0 {
			relevant = c.ExpectedRanking
		}
		m := CalculateAllMetrics(results, c.ExpectedRanking, relevant, k)
		total.NDCG += m.NDCG
		total.MRR += m.MRR
		total.PrecisionAtK += m.PrecisionAtK
	}

	n := float64(len(cases))
	total.NDCG /= n
	total.MRR /= n
	total.PrecisionAtK /= n
	return total, nil
}
