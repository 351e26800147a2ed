package retriever

import (
	"regexp"
	"strings"

	"github.com/tincomking/tinmem/internal/types"
)

// tagLikeRe matches a "<" optionally followed by "/" and then one or more
// letters — the opening shape of an XML/HTML tag or closing tag. Neutering
// it before embedding stored text into an assembled context prevents a
// memory's own content from closing out a delimiter block the caller wraps
// the context in.
var tagLikeRe = regexp.MustCompile(`<(/?)([A-Za-z])`)

// neutralizeTags rewrites every tag-like sequence by inserting a space
// between the "<" and its suffix. It is idempotent: running it twice
// produces the same output as running it once, since the inserted space
// means the replaced text no longer matches tagLikeRe (a literal "<"
// followed directly by "/" or a letter).
func neutralizeTags(s string) string {
	return tagLikeRe.ReplaceAllString(s, "< $1$2")
}

// BuildContext assembles an LLM-ready context block from scored memories at
// the given abstraction level, most relevant first, each entry's text
// passed through neutralizeTags.
func BuildContext(memories []*types.ScoredMemory, level types.ContextLevel) string {
	var b strings.Builder
	for i, m := range memories {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(neutralizeTags(textAtLevel(m.Memory, level)))
	}
	return b.String()
}

func textAtLevel(m *types.Memory, level types.ContextLevel) string {
	switch level {
	case types.LevelHeadline:
		return m.Headline
	case types.LevelSummary:
		return m.Summary
	default:
		return m.Content
	}
}
