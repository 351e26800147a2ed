// Package extractor turns raw conversational text into candidate memories
// by prompting the LLM capability for a structured extraction and
// defensively parsing whatever it returns.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tincomking/tinmem/internal/llm"
	"github.com/tincomking/tinmem/internal/logging"
	"github.com/tincomking/tinmem/internal/retriever"
	"github.com/tincomking/tinmem/internal/types"
)

var log = logging.GetLogger("extractor")

const systemPrompt = `You extract durable memories from conversation text. A memory is worth
keeping only if it would still matter to recall days or weeks from now:
stable facts about the user, their preferences, people/places/things they
reference, notable events, concrete cases or incidents, and recurring
behavioral patterns. Do not extract small talk, acknowledgements, or
information that is only useful for the current turn.

Classify each memory into exactly one category:
- profile: durable facts about who the user is
- preferences: likes, dislikes, standing choices
- entities: people, places, tools, projects the user refers to
- events: things that happened at a point in time
- cases: specific incidents, bugs, support cases, decisions
- patterns: recurring behavior or habits observed over multiple turns

For each memory produce three abstraction levels:
- headline: a single short phrase (L0)
- summary: one or two sentences (L1)
- content: the fuller detail worth keeping (L2)

Respond with a JSON array. Each element has the shape:
{"headline": "...", "summary": "...", "content": "...", "category": "...",
 "importance": 0.0-1.0, "tags": ["..."]}

If nothing in the text is worth remembering, respond with an empty array: []`

// Extractor calls the LLM capability and parses candidate memories out of
// its response.
type Extractor struct {
	llm llm.Capability
}

func New(capability llm.Capability) *Extractor {
	return &Extractor{llm: capability}
}

// Extract runs the extraction prompt over text. Text that is adaptive-noise
// (greetings, acknowledgements) is gated out before the LLM is ever called,
// the same gate the retriever applies on the recall side.
func (e *Extractor) Extract(ctx context.Context, text string) ([]types.ExtractedMemory, error) {
	if retriever.IsNoise(text) {
		log.Debug("turn filtered as noise, skipping extraction")
		return nil, nil
	}

	raw, err := e.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: text},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}

	return parseExtraction(raw), nil
}

type rawMemory struct {
	Headline   string                 `json:"headline"`
	Summary    string                 `json:"summary"`
	Content    string                 `json:"content"`
	Category   string                 `json:"category"`
	Importance float64                `json:"importance"`
	Tags       []string               `json:"tags"`
	Metadata   map[string]interface{} `json:"metadata"`
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseExtraction defensively parses an LLM response into a list of
// extracted memories. Models are unreliable about exact JSON shape even in
// JSON mode: they wrap arrays in code fences, wrap the array in an object
// under a key like "memories", or emit an item that fails validation. Every
// one of these is handled by falling back rather than erroring the whole
// batch — a malformed item is dropped, not fatal.
func parseExtraction(raw string) []types.ExtractedMemory {
	body := strings.TrimSpace(raw)
	if m := fencedBlockRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if body == "" {
		return nil
	}

	var items []rawMemory
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		// Maybe the model wrapped the array in an object. Try every
		// top-level field looking for the first one that is an array.
		var wrapper map[string]json.RawMessage
		if wrapErr := json.Unmarshal([]byte(body), &wrapper); wrapErr == nil {
			for _, v := range wrapper {
				var nested []rawMemory
				if json.Unmarshal(v, &nested) == nil {
					items = nested
					break
				}
			}
		}
	}

	out := make([]types.ExtractedMemory, 0, len(items))
	for _, it := range items {
		if !types.IsValidCategory(it.Category) {
			log.Warn("dropping extracted item with invalid category", "category", it.Category)
			continue
		}
		if strings.TrimSpace(it.Headline) == "" || strings.TrimSpace(it.Summary) == "" || strings.TrimSpace(it.Content) == "" {
			log.Warn("dropping extracted item missing headline, summary or content")
			continue
		}
		importance := it.Importance
		if importance <= 0 {
			importance = 0.5
		}
		if importance > 1 {
			importance = 1
		}
		out = append(out, types.ExtractedMemory{
			Headline:   it.Headline,
			Summary:    it.Summary,
			Content:    it.Content,
			Category:   types.Category(it.Category),
			Importance: importance,
			Tags:       it.Tags,
			Metadata:   it.Metadata,
		})
	}
	return out
}
