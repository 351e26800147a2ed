package rerank

import "context"

// Noop returns every document at its original position with a zero score.
// It exists so a retriever configured without a reranker can use the
// same Capability interface as one wired to a real cross-encoder.
type Noop struct{}

func (Noop) Rerank(_ context.Context, _ string, documents []string) ([]Result, error) {
	out := make([]Result, len(documents))
	for i := range documents {
		out[i] = Result{Index: i, Score: 0}
	}
	return out, nil
}
