package tinmem

import (
	"github.com/tincomking/tinmem/internal/embedding"
	"github.com/tincomking/tinmem/internal/llm"
	"github.com/tincomking/tinmem/internal/rerank"
	"github.com/tincomking/tinmem/pkg/config"
)

// DefaultCapabilities builds the Ollama embedding/LLM clients and, when
// cfg.Retrieval.Reranker names an endpoint, the generic HTTP reranker —
// the concrete capability implementations this module ships. Callers
// wanting a different provider build their own Capability and pass it to
// New directly instead of calling this helper.
func DefaultCapabilities(cfg *config.Config) (embedding.Capability, llm.Capability, rerank.Capability) {
	embedder := embedding.NewOllamaClient(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	llmClient := llm.NewOllamaClient(cfg.LLM.BaseURL, cfg.LLM.Model)

	var reranker rerank.Capability = rerank.Noop{}
	if cfg.Retrieval.Reranker != "" {
		reranker = rerank.NewHTTPClient(cfg.Retrieval.Reranker, "")
	}

	return embedder, llmClient, reranker
}
