// Package llm provides the LLM capability the extractor and deduplicator
// use to turn raw text into structured memory candidates and merge
// decisions.
package llm

import "context"

// Message is one turn in a chat-style completion request.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Capability is the contract the extractor and deduplicator rely on.
type Capability interface {
	// Complete runs one chat completion over messages. When jsonMode is
	// true, implementations should ask the underlying model for a JSON
	// response where the provider supports it (e.g. Ollama's format:"json"),
	// but callers must still defensively parse the result since not every
	// provider enforces it.
	Complete(ctx context.Context, messages []Message, jsonMode bool) (string, error)
}
