package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tincomking/tinmem/internal/types"
)

// predicate builds literal SQL predicate fragments for the scope/category
// filter dimensions of vectorSearch and fullTextSearch. Every input is first
// validated against a closed grammar, then escaped (quote-doubled) and
// wrapped in single quotes before it is composed into the fragment — a
// caller can never smuggle SQL through a scope or category value, the same
// defence a bound parameter gives, expressed as a string builder in the
// style of a LanceDB/DuckDB filter API.
type predicate struct {
	clauses []string
}

func newPredicate() *predicate {
	return &predicate{}
}

// quoteLiteral escapes embedded single quotes by doubling them and wraps the
// result in single quotes, per §4.2's escape step. Applied unconditionally,
// even to already-validated input, so a future widening of a grammar cannot
// silently open an injection path.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// withScope restricts results to an exact scope. Scope must already satisfy
// the grammar in types.IsValidScope; callers that accept scope from an
// external caller must validate before reaching here.
func (p *predicate) withScope(scope string) error {
	if scope == "" {
		return nil
	}
	if !types.IsValidScope(scope) {
		return fmt.Errorf("%w: invalid scope %q", ErrInvalidArgument, scope)
	}
	p.clauses = append(p.clauses, "scope = "+quoteLiteral(scope))
	return nil
}

// withCategories restricts results to one of a closed set of categories.
// Multiple values compose into an OR-joined group per §4.2's compose step.
func (p *predicate) withCategories(categories []types.Category) error {
	if len(categories) == 0 {
		return nil
	}
	terms := make([]string, 0, len(categories))
	for _, c := range categories {
		if !types.IsValidCategory(string(c)) {
			return fmt.Errorf("%w: invalid category %q", ErrInvalidArgument, c)
		}
		terms = append(terms, "category = "+quoteLiteral(string(c)))
	}
	p.clauses = append(p.clauses, "("+strings.Join(terms, " OR ")+")")
	return nil
}

// withMinImportance restricts results to importance >= min.
func (p *predicate) withMinImportance(min float64) error {
	if min <= 0 {
		return nil
	}
	if min > 1 {
		return fmt.Errorf("%w: importance threshold %v out of range", ErrInvalidArgument, min)
	}
	p.clauses = append(p.clauses, "importance >= "+strconv.FormatFloat(min, 'f', -1, 64))
	return nil
}

// withTags restricts results to rows whose JSON tags array contains every
// tag given. Tags are matched via a closed LIKE grammar over the JSON
// literal, not a free-form substring: wildcard characters are escaped before
// the value is escaped/quoted as a literal, since tags are validated
// upstream by the caller (internal/types has no tag grammar of its own).
func (p *predicate) withTags(tags []string) {
	for _, t := range tags {
		pattern := "%\"" + escapeLike(t) + "\"%"
		p.clauses = append(p.clauses, "tags LIKE "+quoteLiteral(pattern)+" ESCAPE '\\'")
	}
}

// escapeLike escapes the LIKE wildcard characters so a tag value cannot
// widen its own match pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// where renders the composed predicate as a " WHERE ..." SQL fragment
// (empty string if there are no clauses). Every clause is already a fully
// literal, validated-and-escaped expression; there is nothing left to bind.
func (p *predicate) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

// and appends a raw clause as-is; the caller is responsible for having
// validated it. No caller in this package uses it at present.
func (p *predicate) and(clause string) {
	p.clauses = append(p.clauses, clause)
}
