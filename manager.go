// Package tinmem is the public façade over the persistent memory engine:
// ingestion (processTurn/processSession/store), hybrid retrieval (recall/
// buildContext), and administration (forget/update/list/stats/export/
// import/reembed). It sits at the module root the way an importable
// library's top package does, so hook adapters and any CLI built on top
// of it import github.com/tincomking/tinmem directly.
package tinmem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tincomking/tinmem/internal/dedup"
	"github.com/tincomking/tinmem/internal/dependencies"
	"github.com/tincomking/tinmem/internal/embedding"
	"github.com/tincomking/tinmem/internal/extractor"
	"github.com/tincomking/tinmem/internal/llm"
	"github.com/tincomking/tinmem/internal/logging"
	"github.com/tincomking/tinmem/internal/rerank"
	"github.com/tincomking/tinmem/internal/retriever"
	"github.com/tincomking/tinmem/internal/scorer"
	"github.com/tincomking/tinmem/internal/store"
	"github.com/tincomking/tinmem/internal/types"
	"github.com/tincomking/tinmem/pkg/config"
)

var log = logging.GetLogger("tinmem")

const exportVersion = "1.0.0"
const pageSize = 200

// Manager composes the Store, the pluggable capabilities, and the
// retrieval/dedup/extraction pipelines into the Library API.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	embedder  embedding.Capability
	llm       llm.Capability
	reranker  rerank.Capability
	extractor *extractor.Extractor
	dedup     *dedup.Deduplicator
	retriever *retriever.Retriever
}

// New opens the Store at cfg.DBPath and wires every component per cfg.
// Callers supply the capability implementations so tests (and alternative
// providers) can substitute fakes; DefaultCapabilities builds the shipped
// Ollama/HTTP ones from cfg.
func New(cfg *config.Config, embedder embedding.Capability, llmCap llm.Capability, reranker rerank.Capability) (*Manager, error) {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := s.EnsureVectorIndex(cfg.Embedding.Dimensions); err != nil {
		s.Close()
		return nil, fmt.Errorf("ensuring vector index: %w", err)
	}

	if reranker == nil {
		reranker = rerank.Noop{}
	}

	sc := scorer.New(scorer.Config{
		Weights: scorer.Weights{
			VectorWeight: cfg.Scoring.VectorWeight,
			BM25Weight:   cfg.Scoring.BM25Weight,
			RerankWeight: cfg.Scoring.RerankerWeight,
		},
		RecencyBoostDays:   cfg.Scoring.RecencyBoostDays,
		RecencyBoostFactor: cfg.Scoring.RecencyBoostFactor,
		ImportanceBoost:    cfg.Scoring.ImportanceWeight,
		TimePenaltyDays:    cfg.Scoring.TimePenaltyDays,
		TimePenaltyFactor:  cfg.Scoring.TimePenaltyFactor,
	})

	r := retriever.New(s, embedder, reranker, sc, retriever.Config{
		TopK:            cfg.Retrieval.Limit,
		MinScore:        cfg.Retrieval.MinScore,
		OverfetchFactor: cfg.Retrieval.CandidateMultiplier,
		Hybrid:          cfg.Retrieval.Hybrid,
	})

	dd := dedup.New(s, llmCap, dedup.Config{
		Strategy:            dedup.Strategy(cfg.Deduplication.Strategy),
		SimilarityThreshold: cfg.Deduplication.SimilarityThreshold,
		LLMThreshold:        cfg.Deduplication.LLMThreshold,
	})

	return &Manager{
		cfg:       cfg,
		store:     s,
		embedder:  embedder,
		llm:       llmCap,
		reranker:  reranker,
		extractor: extractor.New(llmCap),
		dedup:     dd,
		retriever: r,
	}, nil
}

// Close releases the underlying Store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// CheckDependencies probes the embedding and LLM providers named in the
// manager's configuration and reports whether each is reachable with its
// required model available.
func (m *Manager) CheckDependencies(ctx context.Context) *dependencies.CheckResult {
	return dependencies.Check(ctx, m.cfg)
}

func (m *Manager) scopeOrDefault(scope string) string {
	if scope == "" {
		return m.cfg.DefaultScope
	}
	return scope
}

func embeddingText(headline, summary, content string) string {
	return headline + "\n" + summary + "\n" + content
}

// ingest runs the extractor over text, then resolves each candidate through
// the embedding capability and the Deduplicator, applying whatever decision
// comes back. A candidate that fails to embed is skipped with a debug log,
// never fatal to the batch.
func (m *Manager) ingest(ctx context.Context, text, scope string) ([]*types.Memory, error) {
	candidates, err := m.extractor.Extract(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}

	var out []*types.Memory
	for _, c := range candidates {
		mem, err := m.applyCandidate(ctx, c, scope)
		if err != nil {
			log.Warn("skipping candidate after dedup/apply failure", "error", err)
			continue
		}
		if mem != nil {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *Manager) applyCandidate(ctx context.Context, c types.ExtractedMemory, scope string) (*types.Memory, error) {
	vec, err := m.embedder.Embed(ctx, embeddingText(c.Headline, c.Summary, c.Content))
	if err != nil {
		log.Debug("skipping candidate: embed failed", "error", err)
		return nil, nil
	}

	decision, err := m.dedup.Decide(ctx, c, vec, scope)
	if err != nil {
		return nil, fmt.Errorf("dedup decision: %w", err)
	}

	switch decision.Kind {
	case types.DecisionSkip:
		return nil, nil

	case types.DecisionCreate:
		mem := &types.Memory{
			Headline:   c.Headline,
			Summary:    c.Summary,
			Content:    c.Content,
			Category:   c.Category,
			Scope:      scope,
			Importance: c.Importance,
			Tags:       c.Tags,
			Metadata:   c.Metadata,
			Vector:     vec,
		}
		if err := m.store.Queue().Insert(mem); err != nil {
			return nil, fmt.Errorf("insert: %w", err)
		}
		return mem, nil

	case types.DecisionMerge:
		mergedVec, err := m.embedder.Embed(ctx, embeddingText(decision.MergedHeadline, decision.MergedSummary, decision.MergedContent))
		if err != nil {
			mergedVec = vec
		}
		headline, summary, content := decision.MergedHeadline, decision.MergedSummary, decision.MergedContent
		delta := &types.MemoryDelta{
			Headline: &headline,
			Summary:  &summary,
			Content:  &content,
			Tags:     decision.MergedTags,
			Vector:   mergedVec,
		}
		if err := m.store.Queue().Update(decision.TargetID, delta); err != nil {
			return nil, fmt.Errorf("merge update: %w", err)
		}
		return m.store.GetByID(decision.TargetID)

	default:
		return nil, nil
	}
}

// ProcessTurn extracts and ingests durable memories from one conversation
// turn. A turn whose user message is noise (greeting, acknowledgement)
// yields no memories without calling the LLM.
func (m *Manager) ProcessTurn(ctx context.Context, userMessage, assistantResponse, scope, existingContext string) ([]*types.Memory, error) {
	if retriever.IsNoise(userMessage) {
		return nil, nil
	}
	var b strings.Builder
	if existingContext != "" {
		b.WriteString(existingContext)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "User: %s\nAssistant: %s", userMessage, assistantResponse)
	return m.ingest(ctx, b.String(), m.scopeOrDefault(scope))
}

// ProcessSession extracts and ingests durable memories from an entire
// conversation history.
func (m *Manager) ProcessSession(ctx context.Context, history []string, scope string) ([]*types.Memory, error) {
	return m.ingest(ctx, strings.Join(history, "\n"), m.scopeOrDefault(scope))
}

// StoreOptions configures Manager.Store.
type StoreOptions struct {
	Scope          string
	Importance     float64
	Tags           []string
	Metadata       map[string]interface{}
	SkipExtraction bool
}

// Store either runs the extractor over content (overriding every extracted
// record's category with the one supplied), or — with SkipExtraction —
// inserts a single record built directly from content.
func (m *Manager) Store(ctx context.Context, content string, category types.Category, opts StoreOptions) ([]*types.Memory, error) {
	scope := m.scopeOrDefault(opts.Scope)

	if opts.SkipExtraction {
		importance := opts.Importance
		if importance <= 0 {
			importance = 0.5
		}
		headline := truncateRunes(content, 100)
		summary := truncateRunes(content, 300)
		vec, err := m.embedder.Embed(ctx, embeddingText(headline, summary, content))
		if err != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		mem := &types.Memory{
			Headline:   headline,
			Summary:    summary,
			Content:    content,
			Category:   category,
			Scope:      scope,
			Importance: importance,
			Tags:       opts.Tags,
			Metadata:   opts.Metadata,
			Vector:     vec,
		}
		if err := m.store.Queue().Insert(mem); err != nil {
			return nil, fmt.Errorf("insert: %w", err)
		}
		return []*types.Memory{mem}, nil
	}

	candidates, err := m.extractor.Extract(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}

	var out []*types.Memory
	for _, c := range candidates {
		c.Category = category
		mem, err := m.applyCandidate(ctx, c, scope)
		if err != nil {
			log.Warn("skipping candidate after dedup/apply failure", "error", err)
			continue
		}
		if mem != nil {
			out = append(out, mem)
		}
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Recall runs the hybrid retrieval pipeline.
func (m *Manager) Recall(ctx context.Context, query string, filter types.MemoryFilter) (*types.RetrievalResult, error) {
	return m.retriever.Recall(ctx, query, filter)
}

// BuildContext recalls and assembles an LLM-ready context block at the
// requested abstraction level.
func (m *Manager) BuildContext(ctx context.Context, query string, filter types.MemoryFilter, level types.ContextLevel) (string, error) {
	result, err := m.retriever.Recall(ctx, query, filter)
	if err != nil {
		return "", err
	}
	return retriever.BuildContext(result.Memories, level), nil
}

// Forget deletes one memory by id.
func (m *Manager) Forget(id string) error {
	return m.store.Queue().Delete(id)
}

// ForgetMany deletes a batch of memories by id, returning the count removed.
func (m *Manager) ForgetMany(ids []string) (int64, error) {
	return m.store.Queue().DeleteMany(ids)
}

// ForgetByScope deletes every memory in scope, returning the count removed.
func (m *Manager) ForgetByScope(scope string) (int64, error) {
	return m.store.Queue().DeleteByScope(scope)
}

// GetByID fetches one memory, or ErrNotFound wrapped via store.ErrNotFound.
func (m *Manager) GetByID(id string) (*types.Memory, error) {
	return m.store.GetByID(id)
}

// Update applies delta to the memory at id, re-embedding when delta touches
// headline, summary or content.
func (m *Manager) Update(ctx context.Context, id string, delta *types.MemoryDelta) error {
	if delta.TextChanged() {
		existing, err := m.store.GetByID(id)
		if err != nil {
			return err
		}
		headline, summary, content := existing.Headline, existing.Summary, existing.Content
		if delta.Headline != nil {
			headline = *delta.Headline
		}
		if delta.Summary != nil {
			summary = *delta.Summary
		}
		if delta.Content != nil {
			content = *delta.Content
		}
		vec, err := m.embedder.Embed(ctx, embeddingText(headline, summary, content))
		if err != nil {
			return fmt.Errorf("update re-embed: %w", err)
		}
		delta.Vector = vec
	}
	return m.store.Queue().Update(id, delta)
}

// List pages through memories matching filter.
func (m *Manager) List(filter types.MemoryFilter, limit, offset int) ([]*types.Memory, error) {
	return m.store.List(filter, limit, offset)
}

// GetStats returns the store-wide aggregate.
func (m *Manager) GetStats() (*types.MemoryStats, error) {
	return m.store.GetStats()
}

func (m *Manager) listAll(scope string) ([]*types.Memory, error) {
	var all []*types.Memory
	offset := 0
	for {
		page, err := m.store.List(types.MemoryFilter{Scope: scope}, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}

// Export materialises every memory in scope (or every memory, if scope is
// empty) into the §6.4 payload shape.
func (m *Manager) Export(scope string) (*types.ExportPayload, error) {
	memories, err := m.listAll(scope)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	stats, err := m.store.GetStats()
	if err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}
	return &types.ExportPayload{
		Version:    exportVersion,
		ExportedAt: time.Now().UnixMilli(),
		Memories:   memories,
		Stats:      stats,
	}, nil
}

// Import inserts every memory in payload afresh, assigning new ids and
// re-embedding. A memory whose embedding or insert fails is logged and
// skipped; the count of memories actually imported is returned.
func (m *Manager) Import(ctx context.Context, payload *types.ExportPayload, overrideScope string) (int, error) {
	rows := make([]*types.Memory, 0, len(payload.Memories))
	for _, src := range payload.Memories {
		scope := src.Scope
		if overrideScope != "" {
			scope = overrideScope
		}
		vec, err := m.embedder.Embed(ctx, embeddingText(src.Headline, src.Summary, src.Content))
		if err != nil {
			log.Warn("import: embed failed, skipping memory", "error", err)
			continue
		}
		rows = append(rows, &types.Memory{
			Headline:   src.Headline,
			Summary:    src.Summary,
			Content:    src.Content,
			Category:   src.Category,
			Scope:      scope,
			Importance: src.Importance,
			Tags:       src.Tags,
			Metadata:   src.Metadata,
			Vector:     vec,
		})
	}
	count := 0
	for _, row := range rows {
		if err := m.store.Queue().Insert(row); err != nil {
			log.Warn("import: insert failed, skipping memory", "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// Reembed recomputes the vector for every memory in scope (or every
// memory, if scope is empty). Per-memory failures are swallowed; the
// count of memories successfully re-embedded is returned.
func (m *Manager) Reembed(ctx context.Context, scope string) (int, error) {
	memories, err := m.listAll(scope)
	if err != nil {
		return 0, fmt.Errorf("listing memories: %w", err)
	}

	count := 0
	for _, mem := range memories {
		vec, err := m.embedder.Embed(ctx, embeddingText(mem.Headline, mem.Summary, mem.Content))
		if err != nil {
			log.Warn("reembed: embed failed, skipping memory", "id", mem.ID, "error", err)
			continue
		}
		if err := m.store.Queue().Update(mem.ID, &types.MemoryDelta{Vector: vec}); err != nil {
			log.Warn("reembed: update failed, skipping memory", "id", mem.ID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}
