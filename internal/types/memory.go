// Package types holds the data model shared by the store, extractor,
// deduplicator, scorer, retriever and manager. Keeping it separate avoids
// import cycles between those packages.
package types

import "regexp"

// Category is the closed set of memory categories. Category controls merge
// rules in the deduplicator (§4.7 of the spec).
type Category string

const (
	CategoryProfile     Category = "profile"
	CategoryPreferences Category = "preferences"
	CategoryEntities    Category = "entities"
	CategoryEvents      Category = "events"
	CategoryCases       Category = "cases"
	CategoryPatterns    Category = "patterns"
)

// Categories is the closed set in a stable order, used for validation and
// for stats bucketing.
var Categories = []Category{
	CategoryProfile,
	CategoryPreferences,
	CategoryEntities,
	CategoryEvents,
	CategoryCases,
	CategoryPatterns,
}

// IsValidCategory reports whether c is one of the six closed categories.
func IsValidCategory(c string) bool {
	for _, valid := range Categories {
		if string(valid) == c {
			return true
		}
	}
	return false
}

// IsAppendOnly reports whether c is an append-only category (events,
// cases): such categories never merge; every candidate becomes a new row.
func IsAppendOnly(c Category) bool {
	return c == CategoryEvents || c == CategoryCases
}

// scopeNameRe matches the <id>/<name> portion of a scope: [A-Za-z0-9_.-]+
var scopeNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// scopeRe matches a full scope string: global|(agent|project|user|custom):name
var scopeRe = regexp.MustCompile(`^(global|(agent|project|user|custom):[A-Za-z0-9_.-]+)$`)

// IsValidScope reports whether s matches the scope grammar in spec §3.
func IsValidScope(s string) bool {
	return scopeRe.MatchString(s)
}

// uuidRe matches the canonical 8-4-4-4-12 hex UUID form, case-insensitive.
var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValidID reports whether id matches the canonical UUID grammar.
func IsValidID(id string) bool {
	return uuidRe.MatchString(id)
}

// Memory is a persistent, addressable unit of recall (spec §3).
type Memory struct {
	ID             string
	Headline       string // L0
	Summary        string // L1
	Content        string // L2
	Category       Category
	Scope          string
	Importance     float64
	Tags           []string
	Metadata       map[string]interface{}
	CreatedAt      int64 // unix-ms
	UpdatedAt      int64
	LastAccessedAt int64
	AccessCount    int64
	Vector         []float32
}

// Clone returns a deep-enough copy: slices and maps are copied so later
// mutation of the original does not alias the copy. The write queue does
// not use it; its updates roll back through SQL transactions.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Tags != nil {
		clone.Tags = append([]string(nil), m.Tags...)
	}
	if m.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	if m.Vector != nil {
		clone.Vector = append([]float32(nil), m.Vector...)
	}
	return &clone
}

// MemoryDelta carries a partial update for Store.Update / Manager.Update.
// Nil fields are left unchanged.
type MemoryDelta struct {
	Headline   *string
	Summary    *string
	Content    *string
	Category   *Category
	Importance *float64
	Tags       []string
	Metadata   map[string]interface{}
	Vector     []float32 // set by re-embedding, never by a caller delta directly
}

// TextChanged reports whether the delta touches headline, summary or
// content — the trigger for re-embedding per spec §4.8.
func (d *MemoryDelta) TextChanged() bool {
	return d != nil && (d.Headline != nil || d.Summary != nil || d.Content != nil)
}

// VectorCandidate is a Store search hit before scoring: the raw memory plus
// the raw per-channel signal (distance for vector search, relevance for FTS).
type VectorCandidate struct {
	Memory   *Memory
	Distance float64 // cosine distance, lower is better
}

type LexicalCandidate struct {
	Memory    *Memory
	Relevance float64 // provider-defined, higher is better, unbounded
}

// ExtractedMemory is the shape the Extractor (C6) produces from the LLM and
// the Deduplicator (C7) / Manager (C8) consume.
type ExtractedMemory struct {
	Headline   string
	Summary    string
	Content    string
	Category   Category
	Importance float64
	Tags       []string
	Metadata   map[string]interface{}
}

// DedupDecisionKind is CREATE, MERGE or SKIP (spec §4.7).
type DedupDecisionKind string

const (
	DecisionCreate DedupDecisionKind = "CREATE"
	DecisionMerge  DedupDecisionKind = "MERGE"
	DecisionSkip   DedupDecisionKind = "SKIP"
)

// DedupDecision is the outcome of the Deduplicator for one candidate.
type DedupDecision struct {
	Kind            DedupDecisionKind
	TargetID        string // set for DecisionMerge; for DecisionSkip, the duplicate's id when known
	MergedHeadline  string
	MergedSummary   string
	MergedContent   string
	MergedTags      []string
}

// ScoredMemory is a Memory with its final retrieval score and the
// constituent signals that produced it, returned by the Scorer (C4).
type ScoredMemory struct {
	Memory      *Memory
	VectorScore float64
	BM25Score   float64
	RerankScore float64
	HasRerank   bool
	Final       float64
}

// RetrievalResult is the Retriever's (C5) output.
type RetrievalResult struct {
	Memories   []*ScoredMemory
	Query      string
	TotalFound int
	TimingMs   int64
}

// ContextLevel selects the abstraction level used by context assembly.
type ContextLevel int

const (
	LevelHeadline ContextLevel = iota // L0
	LevelSummary                      // L1
	LevelContent                      // L2
)

// MemoryFilter is used by administrative listing (Store.List).
type MemoryFilter struct {
	Scope      string
	Categories []Category
	Tags       []string
	MinImportance float64
}

// MemoryStats is the aggregate returned by Store.GetStats / Manager.GetStats.
type MemoryStats struct {
	Total         int64
	ByCategory    map[Category]int64
	ByScope       map[string]int64
	OldestCreated *int64
	NewestCreated *int64
	AvgImportance float64
}

// ExportPayload is the §6.4 export format.
type ExportPayload struct {
	Version    string        `json:"version"`
	ExportedAt int64         `json:"exportedAt"`
	Memories   []*Memory     `json:"memories"`
	Stats      *MemoryStats  `json:"stats"`
}
