// Package source implements dataset fetchers and the reference resolver.
package source

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// DefaultPattern is the file naming scheme of the published flood masks.
const DefaultPattern = "Agua_{stage}_Tabasco_{year}.geojson"

// DefaultStageTokens are the Spanish stage names used in file names.
var DefaultStageTokens = map[domain.Stage]string{
	domain.StageBefore:      "Antes",
	domain.StageDuring:      "Durante",
	domain.StageAfter:       "Después",
	domain.StageComparative: "Comparativo",
}

// Resolver expands {stage} and {year} placeholders of a naming pattern.
type Resolver struct {
	pattern string
	tokens  map[domain.Stage]string
	fold    bool
}

// NewResolver builds a resolver. Stages with no token fall back to their
// English display name. When foldAccents is set, diacritics are stripped from
// the stage token ("Después" becomes "Despues").
func NewResolver(pattern string, tokens map[domain.Stage]string, foldAccents bool) *Resolver {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if tokens == nil {
		tokens = DefaultStageTokens
	}
	return &Resolver{pattern: pattern, tokens: tokens, fold: foldAccents}
}

// Resolve returns the source reference for (stage, year).
func (r *Resolver) Resolve(stage domain.Stage, year int) string {
	token, ok := r.tokens[stage]
	if !ok || token == "" {
		token = stage.String()
	}
	if r.fold {
		token = FoldAccents(token)
	}
	return strings.NewReplacer(
		"{stage}", token,
		"{year}", strconv.Itoa(year),
	).Replace(r.pattern)
}

// Func adapts the resolver to domain.Resolver.
func (r *Resolver) Func() domain.Resolver {
	return r.Resolve
}

// FoldAccents removes combining marks after canonical decomposition.
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
