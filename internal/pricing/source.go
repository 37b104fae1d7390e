package pricing

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/valueboard/internal/fetcher"
	"github.com/sells-group/valueboard/internal/model"
)

// Source produces raw price quotes. Implementations report fetch failures
// as errors; the pipeline records them without aborting other sources.
type Source interface {
	Name() string
	Fetch(ctx context.Context, snapshotAt time.Time) ([]model.RawPrice, error)
}

// OpenRouter defaults.
const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterSourceURL      = "https://openrouter.ai/models"
	openRouterSourceName     = "OpenRouter Models API"
)

// OpenRouterConfig configures the OpenRouter models source.
type OpenRouterConfig struct {
	BaseURL string
	APIKey  string
	Referer string
	Title   string
}

// OpenRouterSource reads per-token prices from the OpenRouter models API.
type OpenRouterSource struct {
	f   fetcher.Fetcher
	cfg OpenRouterConfig
}

// NewOpenRouterSource creates an OpenRouterSource.
func NewOpenRouterSource(f fetcher.Fetcher, cfg OpenRouterConfig) *OpenRouterSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenRouterSource{f: f, cfg: cfg}
}

// Name implements Source.
func (s *OpenRouterSource) Name() string { return ProviderOpenRouter }

type openRouterPricing struct {
	Prompt          any `json:"prompt"`
	Completion      any `json:"completion"`
	Image           any `json:"image"`
	InputCacheRead  any `json:"input_cache_read"`
	InputCacheWrite any `json:"input_cache_write"`
}

type openRouterModel struct {
	ID      string             `json:"id"`
	Pricing *openRouterPricing `json:"pricing"`
}

type openRouterResponse struct {
	Data []openRouterModel `json:"data"`
}

// Fetch implements Source.
func (s *OpenRouterSource) Fetch(ctx context.Context, snapshotAt time.Time) ([]model.RawPrice, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if s.cfg.Referer != "" {
		header.Set("HTTP-Referer", s.cfg.Referer)
	}
	if s.cfg.Title != "" {
		header.Set("X-Title", s.cfg.Title)
	}
	confidence := model.ConfidenceMedium
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		confidence = model.ConfidenceHigh
	}

	body, err := s.f.Get(ctx, s.cfg.BaseURL+"/models", header)
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: fetch models")
	}
	defer body.Close() //nolint:errcheck

	resp, err := fetcher.DecodeJSONObject[openRouterResponse](body)
	if err != nil {
		return nil, eris.Wrap(err, "openrouter: decode models")
	}

	var out []model.RawPrice
	for _, row := range resp.Data {
		if row.ID == "" {
			continue
		}
		p := row.Pricing
		if p == nil {
			p = &openRouterPricing{}
		}
		rp := model.RawPrice{
			ExternalModelID: row.ID,
			InputPrice1M:    NormalizePrice(p.Prompt),
			OutputPrice1M:   NormalizePrice(p.Completion),
			CachedInput1M:   NormalizePrice(p.InputCacheRead),
			// The endpoint has no batch pricing; cache-write is the closest
			// discounted-input figure it exposes.
			BatchInput1M: NormalizePrice(p.InputCacheWrite),
			ImagePrice:   NormalizePrice(p.Image),
			SourceURL:    openRouterSourceURL,
			SourceName:   openRouterSourceName,
			SnapshotAt:   snapshotAt,
			Confidence:   confidence,
		}
		if rp.InputPrice1M == nil && rp.OutputPrice1M == nil && rp.ImagePrice == nil {
			continue
		}
		out = append(out, rp)
	}
	return out, nil
}

// VendorSheetSource reads vendor list prices from a YAML sheet:
//
//	vendors:
//	  - vendor: openai
//	    source_url: https://openai.com/api/pricing
//	    models:
//	      - id: openai/gpt-4o
//	        input: 2.5
//	        output: 10
//
// A missing file yields no rows.
type VendorSheetSource struct {
	path string
}

// NewVendorSheetSource creates a VendorSheetSource for path.
func NewVendorSheetSource(path string) *VendorSheetSource {
	return &VendorSheetSource{path: path}
}

// Name implements Source.
func (s *VendorSheetSource) Name() string { return "fallback" }

type vendorSheet struct {
	Vendors []vendorPrices `yaml:"vendors"`
}

type vendorPrices struct {
	Vendor    string            `yaml:"vendor"`
	SourceURL string            `yaml:"source_url"`
	Models    []vendorModelRate `yaml:"models"`
}

type vendorModelRate struct {
	ID          string `yaml:"id"`
	Input       any    `yaml:"input"`
	Output      any    `yaml:"output"`
	CachedInput any    `yaml:"cached_input"`
	BatchInput  any    `yaml:"batch_input"`
	BatchOutput any    `yaml:"batch_output"`
	Image       any    `yaml:"image"`
}

// Fetch implements Source.
func (s *VendorSheetSource) Fetch(_ context.Context, snapshotAt time.Time) ([]model.RawPrice, error) {
	if s.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "vendor sheet: read %s", s.path)
	}

	var sheet vendorSheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return nil, eris.Wrapf(err, "vendor sheet: parse %s", s.path)
	}

	var out []model.RawPrice
	for _, v := range sheet.Vendors {
		for _, m := range v.Models {
			if strings.TrimSpace(m.ID) == "" {
				continue
			}
			rp := model.RawPrice{
				ExternalModelID: m.ID,
				InputPrice1M:    NormalizePrice(m.Input),
				OutputPrice1M:   NormalizePrice(m.Output),
				CachedInput1M:   NormalizePrice(m.CachedInput),
				BatchInput1M:    NormalizePrice(m.BatchInput),
				BatchOutput1M:   NormalizePrice(m.BatchOutput),
				ImagePrice:      NormalizePrice(m.Image),
				SourceURL:       v.SourceURL,
				SourceName:      "Vendor price sheet (" + v.Vendor + ")",
				SnapshotAt:      snapshotAt,
				Confidence:      model.ConfidenceMedium,
			}
			if rp.InputPrice1M == nil && rp.OutputPrice1M == nil && rp.ImagePrice == nil {
				continue
			}
			out = append(out, rp)
		}
	}
	return out, nil
}
