// Package rerank provides the Rerank capability: an optional cross-encoder
// pass over a candidate set that the retriever applies after merging the
// vector and lexical channels.
package rerank

import "context"

// Result is one document's rerank score, keyed by its position in the
// Documents slice passed to Rerank.
type Result struct {
	Index int
	Score float64
}

// Capability is the contract the retriever relies on. A failing or absent
// Capability is never fatal to retrieval: callers fall back to the
// pre-rerank score.
type Capability interface {
	Rerank(ctx context.Context, query string, documents []string) ([]Result, error)
}
