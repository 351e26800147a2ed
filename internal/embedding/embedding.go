// Package embedding provides the Embedding capability: turning text into a
// fixed-dimension vector for the store's ANN index.
package embedding

import "context"

// Capability is the contract the retriever and the manager rely on.
// Implementations must be safe for concurrent use.
type Capability interface {
	// Embed returns the embedding for one piece of text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one embedding per input text, in the same order.
	// A provider without native batching may implement this as a loop over
	// Embed; the interface exists so providers that do support it (batched
	// HTTP calls) don't pay a round trip per text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the fixed vector length this capability produces.
	Dimensions() int
	// Provider returns a short identifying tag (e.g. "ollama:nomic-embed-text")
	// used in logs and in export metadata.
	Provider() string
}
