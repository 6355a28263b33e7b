// Package transform implements the five derivation stages that turn the four
// source relations into the user summary: the dimension normalizer, the two
// first-week aggregators, the conversion detector, and the assembler.
//
// Every stage is a pure function over immutable input slices. Stages share no
// state; the runner wires one stage's output into the next, which keeps each
// stage independently testable and makes the whole derivation deterministic
// regardless of how the runner schedules them.
package transform

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	textransform "golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"funnel/internal/model"
)

// Normalizer produces the user dimension spine: exactly one UserDim per
// Account, with the signup date truncated to day granularity and the industry
// label canonicalized and defaulted.
//
// It is total over well-typed input: no row is ever dropped or duplicated.
type Normalizer struct {
	// DefaultIndustry replaces an industry that is empty after cleaning.
	DefaultIndustry string
}

// Apply normalizes all accounts. Output order follows input order; the
// assembler imposes the final ordering.
func (n Normalizer) Apply(accounts []model.Account) []model.UserDim {
	out := make([]model.UserDim, 0, len(accounts))
	for _, a := range accounts {
		ind := CleanIndustry(a.Industry)
		if ind == "" {
			ind = n.DefaultIndustry
		}
		out = append(out, model.UserDim{
			AccountID:  a.AccountID,
			SignupDate: day(a.SignupDate),
			Industry:   ind,
		})
	}
	return out
}

// deaccent strips combining marks after NFD decomposition, so "Café" and
// "Cafe" canonicalize to the same label.
var deaccent = textransform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var industryTitle = cases.Title(language.English)

// CleanIndustry canonicalizes a raw industry label: strip accents, collapse
// whitespace runs, and title-case, so "fin tech", "Fin  Tech" and "FIN TECH"
// all land in one dimension value. Returns "" when nothing usable remains.
func CleanIndustry(raw string) string {
	s, _, err := textransform.String(deaccent, raw)
	if err != nil {
		s = raw
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return industryTitle.String(strings.ToLower(strings.Join(fields, " ")))
}

// FeatureColumns returns the output column names of a tracked-feature mapping
// in deterministic (sorted) order. This is the column order used by the
// assembler and the storage schema.
func FeatureColumns(tracked map[string]string) []string {
	cols := make([]string, 0, len(tracked))
	seen := make(map[string]bool, len(tracked))
	for _, c := range tracked {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
