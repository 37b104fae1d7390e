package resolve

import (
	"strings"

	"github.com/sells-group/valueboard/internal/model"
)

// MatchArenaName resolves a benchmark row's free-text model name to a catalog
// slug. Precedence, first hit wins across the whole catalog:
//  1. exact alias
//  2. case-insensitive alias or slug
//  3. case-insensitive after stripping a trailing date on both sides
//  4. case-insensitive after stripping trailing version/date markers on both sides
//
// Unmatched names return ("", false); callers drop them.
func MatchArenaName(name string, catalog []model.CatalogEntry) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}

	for _, m := range catalog {
		for _, a := range m.Aliases {
			if a == name {
				return m.Slug, true
			}
		}
	}

	tiers := []func(string) string{
		strings.ToLower,
		func(s string) string { return strings.ToLower(StripDateSuffix(s)) },
		func(s string) string { return strings.ToLower(StripVersionSuffix(s)) },
	}
	for _, fold := range tiers {
		want := fold(name)
		if want == "" {
			continue
		}
		for _, m := range catalog {
			if fold(m.Slug) == want {
				return m.Slug, true
			}
			for _, a := range m.Aliases {
				if fold(a) == want {
					return m.Slug, true
				}
			}
		}
	}
	return "", false
}
