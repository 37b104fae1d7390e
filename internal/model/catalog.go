package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Modality describes the kind of input a catalog model accepts.
type Modality string

const (
	ModalityText       Modality = "text"
	ModalityMultimodal Modality = "multimodal"
	ModalityImage      Modality = "image"
	ModalityVideo      Modality = "video"
)

// ParseModality converts a string into a Modality. Empty input yields "".
func ParseModality(s string) (Modality, error) {
	switch m := Modality(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModalityText, ModalityMultimodal, ModalityImage, ModalityVideo:
		return m, nil
	default:
		return "", eris.Errorf("model: unknown modality %q", s)
	}
}

// CatalogEntry is a canonical model record. The catalog is seeded externally
// and read-only to the scoring engine.
type CatalogEntry struct {
	ID            string   `json:"id" yaml:"id"`
	Slug          string   `json:"slug" yaml:"slug"`
	CanonicalName string   `json:"canonical_name" yaml:"canonical_name"`
	VendorSlug    string   `json:"vendor_slug" yaml:"vendor_slug"`
	VendorName    string   `json:"vendor_name" yaml:"vendor_name"`
	Family        string   `json:"family,omitempty" yaml:"family"`
	Aliases       []string `json:"aliases" yaml:"aliases"`
	Modality      Modality `json:"modality" yaml:"modality"`
	ContextWindow *int     `json:"context_window,omitempty" yaml:"context_window"`
	IsOpenSource  bool     `json:"is_open_source" yaml:"is_open_source"`
	Active        bool     `json:"active" yaml:"active"`
}

// Validate rejects catalog rows that cannot take part in matching.
func (c CatalogEntry) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return eris.New("model: catalog entry missing id")
	}
	if strings.TrimSpace(c.Slug) == "" {
		return eris.Errorf("model: catalog entry %s missing slug", c.ID)
	}
	if _, err := ParseModality(string(c.Modality)); err != nil {
		return eris.Wrapf(err, "model: catalog entry %s", c.ID)
	}
	if c.ContextWindow != nil && *c.ContextWindow < 0 {
		return eris.Errorf("model: catalog entry %s has negative context window", c.ID)
	}
	return nil
}

// MatchesSearch reports whether the entry's name, slug or any alias contains
// the (case-insensitive) search term.
func (c CatalogEntry) MatchesSearch(search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.CanonicalName), q) || strings.Contains(strings.ToLower(c.Slug), q) {
		return true
	}
	for _, a := range c.Aliases {
		if strings.Contains(strings.ToLower(a), q) {
			return true
		}
	}
	return false
}
