// Package industry maps free-form industry phrases onto the canonical
// labels stored in the graph.
package industry

import (
	"slices"
	"strings"
)

var canonical = []string{
	"cleantech",
	"biotech",
	"medtech",
	"healthcare IT",
	"ICT",
	"ICT (fintech)",
	"micro / nano",
	"Life-Sciences",
}

// Alias maps a lower-case key to a canonical label.
type Alias struct {
	Key   string
	Label string
}

// defaultAliases is ordered: substring matching returns the label of the
// first key contained in the phrase.
var defaultAliases = []Alias{
	{"healthcare", "healthcare IT"},
	{"health", "healthcare IT"},
	{"health care", "healthcare IT"},
	{"ict", "ICT"},
	{"tech", "ICT"},
	{"fintech", "ICT (fintech)"},
	{"nano", "micro / nano"},
	{"micro", "micro / nano"},
	{"micro/nano", "micro / nano"},
	{"life sciences", "Life-Sciences"},
	{"lifesciences", "Life-Sciences"},
	{"clean", "cleantech"},
	{"med", "medtech"},
	{"medical", "medtech"},
	{"bio", "biotech"},
}

// Canonical returns the canonical industry labels in their stored casing.
func Canonical() []string { return slices.Clone(canonical) }

// IsCanonical reports whether s is exactly one of the canonical labels.
func IsCanonical(s string) bool { return slices.Contains(canonical, s) }

// Resolver resolves industry phrases. The zero value is not usable; build
// one with NewResolver.
type Resolver struct {
	aliases []Alias
	exact   map[string]string
}

// NewResolver returns a resolver using the default alias table followed by
// extra. Extra keys take part in substring matching after the defaults;
// an extra key equal to a default key overrides its label for exact matches.
func NewResolver(extra map[string]string) *Resolver {
	r := &Resolver{exact: make(map[string]string)}
	r.aliases = append(r.aliases, defaultAliases...)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		r.aliases = append(r.aliases, Alias{Key: key, Label: extra[k]})
	}

	for _, a := range r.aliases {
		r.exact[a.Key] = a.Label
	}
	return r
}

var defaultResolver = NewResolver(nil)

// Resolve maps phrase with the default alias table.
func Resolve(phrase string) string { return defaultResolver.Resolve(phrase) }

// Resolve returns the canonical label for phrase: an exact canonical match,
// then an exact alias, then the first alias key contained in the phrase.
// Unknown phrases are returned unchanged.
func (r *Resolver) Resolve(phrase string) string {
	norm := strings.ToLower(strings.TrimSpace(phrase))
	if norm == "" {
		return phrase
	}
	for _, c := range canonical {
		if strings.ToLower(c) == norm {
			return c
		}
	}
	if label, ok := r.exact[norm]; ok {
		return label
	}
	for _, a := range r.aliases {
		if strings.Contains(norm, a.Key) {
			return a.Label
		}
	}
	return phrase
}

// Aliases returns the alias table in match order.
func (r *Resolver) Aliases() []Alias { return slices.Clone(r.aliases) }
