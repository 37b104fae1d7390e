// Package catalog loads the canonical model catalog from a fixture file and
// seeds it into the store.
package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/store"
)

type fileEntry struct {
	ID            string   `json:"id" yaml:"id"`
	Slug          string   `json:"slug" yaml:"slug"`
	CanonicalName string   `json:"canonical_name" yaml:"canonical_name"`
	VendorSlug    string   `json:"vendor_slug" yaml:"vendor_slug"`
	VendorName    string   `json:"vendor_name" yaml:"vendor_name"`
	Family        string   `json:"family" yaml:"family"`
	Aliases       []string `json:"aliases" yaml:"aliases"`
	Modality      string   `json:"modality" yaml:"modality"`
	ContextWindow *int     `json:"context_window" yaml:"context_window"`
	IsOpenSource  bool     `json:"is_open_source" yaml:"is_open_source"`
	Active        *bool    `json:"active" yaml:"active"`
}

type file struct {
	Models []fileEntry `json:"models" yaml:"models"`
}

// LoadFile reads a catalog fixture. Files ending in .json are decoded as
// JSON, anything else as YAML. Both use a top-level "models" list; entries
// are active unless they say otherwise. The whole file is rejected if any
// entry is invalid or an id or slug repeats.
func LoadFile(path string) ([]model.CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read fixture")
	}

	var f file
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	return toEntries(f.Models)
}

func toEntries(rows []fileEntry) ([]model.CatalogEntry, error) {
	out := make([]model.CatalogEntry, 0, len(rows))
	ids := make(map[string]bool, len(rows))
	slugs := make(map[string]bool, len(rows))
	for i, r := range rows {
		modality, err := model.ParseModality(r.Modality)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: entry %d", i)
		}
		if modality == "" {
			modality = model.ModalityText
		}
		e := model.CatalogEntry{
			ID:            strings.TrimSpace(r.ID),
			Slug:          strings.TrimSpace(r.Slug),
			CanonicalName: strings.TrimSpace(r.CanonicalName),
			VendorSlug:    strings.TrimSpace(r.VendorSlug),
			VendorName:    strings.TrimSpace(r.VendorName),
			Family:        strings.TrimSpace(r.Family),
			Aliases:       r.Aliases,
			Modality:      modality,
			ContextWindow: r.ContextWindow,
			IsOpenSource:  r.IsOpenSource,
			Active:        r.Active == nil || *r.Active,
		}
		if e.CanonicalName == "" {
			e.CanonicalName = e.Slug
		}
		if err := e.Validate(); err != nil {
			return nil, eris.Wrapf(err, "catalog: entry %d", i)
		}
		if ids[e.ID] {
			return nil, eris.Errorf("catalog: duplicate id %q", e.ID)
		}
		if slugs[e.Slug] {
			return nil, eris.Errorf("catalog: duplicate slug %q", e.Slug)
		}
		ids[e.ID], slugs[e.Slug] = true, true
		out = append(out, e)
	}
	return out, nil
}

// Import loads path and upserts every entry, returning the number of rows
// written.
func Import(ctx context.Context, st store.CatalogStore, path string) (int64, error) {
	entries, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	n, err := st.UpsertModels(ctx, entries)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: upsert")
	}
	zap.L().Info("catalog imported",
		zap.String("component", "catalog"),
		zap.String("path", path),
		zap.Int("entries", len(entries)),
		zap.Int64("rows", n),
	)
	return n, nil
}
