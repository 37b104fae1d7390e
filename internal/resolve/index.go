package resolve

import (
	"strings"

	"github.com/sells-group/valueboard/internal/model"
)

// Index is an immutable lookup from normalized identifier keys to catalog
// entries. Build one per run with BuildIndex; it is safe for concurrent reads.
type Index struct {
	keys map[string]model.CatalogEntry
}

// BuildIndex inserts, for every entry, its slug, canonical name, aliases,
// "vendor/slug" and "vendor-slug" under both the exact (NormalizeToken) and
// fuzzy (NormalizeModelName) forms. On collision the first insertion wins.
func BuildIndex(catalog []model.CatalogEntry) Index {
	idx := Index{keys: make(map[string]model.CatalogEntry, len(catalog)*8)}
	for _, m := range catalog {
		raw := make([]string, 0, len(m.Aliases)+4)
		raw = append(raw, m.Slug, m.CanonicalName)
		raw = append(raw, m.Aliases...)
		if m.VendorSlug != "" {
			raw = append(raw, m.VendorSlug+"/"+m.Slug, m.VendorSlug+"-"+m.Slug)
		}
		for _, r := range raw {
			for _, k := range []string{NormalizeToken(r), NormalizeModelName(r)} {
				if k == "" {
					continue
				}
				if _, taken := idx.keys[k]; !taken {
					idx.keys[k] = m
				}
			}
		}
	}
	return idx
}

// Len returns the number of distinct keys.
func (idx Index) Len() int { return len(idx.keys) }

// CandidateKeys derives the lookup keys for an external id in precedence
// order: exact, fuzzy, then the same two forms of the last path segment.
func CandidateKeys(externalID string) []string {
	id := strings.TrimSpace(externalID)
	forms := []string{NormalizeToken(id), NormalizeModelName(id)}
	if i := strings.LastIndex(id, "/"); i >= 0 && i < len(id)-1 {
		tail := id[i+1:]
		forms = append(forms, NormalizeToken(tail), NormalizeModelName(tail))
	}

	keys := make([]string, 0, len(forms))
	seen := make(map[string]bool, len(forms))
	for _, k := range forms {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// Lookup returns the catalog entry for the first candidate key with a hit.
func (idx Index) Lookup(externalID string) (model.CatalogEntry, bool) {
	for _, k := range CandidateKeys(externalID) {
		if m, ok := idx.keys[k]; ok {
			return m, true
		}
	}
	return model.CatalogEntry{}, false
}

// PriceMatch pairs a raw price row with its resolved catalog entry.
type PriceMatch struct {
	Model model.CatalogEntry
	Row   model.RawPrice
}

// MatchPricing resolves every row against idx. Rows without a hit are
// reported by external id in missing, in input order.
func MatchPricing(idx Index, rows []model.RawPrice) (matched []PriceMatch, missing []string) {
	for _, r := range rows {
		m, ok := idx.Lookup(r.ExternalModelID)
		if !ok {
			missing = append(missing, r.ExternalModelID)
			continue
		}
		matched = append(matched, PriceMatch{Model: m, Row: r})
	}
	return matched, missing
}
