// Package resolve maps noisy external model names and ids onto canonical
// catalog entries. Matching is deterministic and rule-based.
package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	separatorRe   = regexp.MustCompile(`[_\s]+`)
	punctuationRe = regexp.MustCompile(`[.:/]+`)
	invalidRe     = regexp.MustCompile(`[^a-z0-9-]`)
	multiHyphenRe = regexp.MustCompile(`-+`)

	// Trailing markers removed by NormalizeModelName, applied until none match.
	modelSuffixRes = []*regexp.Regexp{
		regexp.MustCompile(`-(latest|preview|exp|beta|alpha)$`),
		regexp.MustCompile(`-20\d{2}\d{2}\d{2}$`),
		regexp.MustCompile(`-20\d{2}-\d{2}-\d{2}$`),
		regexp.MustCompile(`-\d{3}$`),
	}

	dateSuffixRe    = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2}|\d{8})$`)
	versionSuffixRe = regexp.MustCompile(`(?i)-(\d{3}|latest|preview|exp|beta|alpha)$`)
)

// foldDiacritics maps "é" to "e" so accented vendor spellings collapse onto ASCII slugs.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeToken standardizes an identifier for key comparison by:
//  1. Trimming whitespace, lowercasing and folding diacritics
//  2. Turning runs of whitespace, underscores, dots, colons and slashes into hyphens
//  3. Dropping every remaining character outside [a-z0-9-]
//  4. Collapsing repeated hyphens and trimming them from both ends
func NormalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = foldDiacritics(s)
	s = separatorRe.ReplaceAllString(s, "-")
	s = punctuationRe.ReplaceAllString(s, "-")
	s = invalidRe.ReplaceAllString(s, "")
	s = multiHyphenRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeModelName is NormalizeToken plus removal of trailing release
// markers (-latest, -preview, -exp, -beta, -alpha, three-digit builds and
// YYYYMMDD / YYYY-MM-DD dates). It is idempotent.
func NormalizeModelName(s string) string {
	s = NormalizeToken(s)
	for {
		prev := s
		for _, re := range modelSuffixRes {
			s = re.ReplaceAllString(s, "")
		}
		s = strings.Trim(multiHyphenRe.ReplaceAllString(s, "-"), "-")
		if s == prev {
			return s
		}
	}
}

// StripDateSuffix removes one trailing -YYYY-MM-DD or -YYYYMMDD marker.
func StripDateSuffix(s string) string {
	return dateSuffixRe.ReplaceAllString(strings.TrimSpace(s), "")
}

// StripVersionSuffix removes trailing version and date markers until none remain.
func StripVersionSuffix(s string) string {
	s = strings.TrimSpace(s)
	for {
		prev := s
		s = dateSuffixRe.ReplaceAllString(s, "")
		s = versionSuffixRe.ReplaceAllString(s, "")
		if s == prev {
			return s
		}
	}
}
