package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// PricingType distinguishes per-token API prices from consumer plans.
type PricingType string

const (
	PricingTypeAPI      PricingType = "api"
	PricingTypeConsumer PricingType = "consumer"
)

// Confidence is a source's self-reported reliability.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PriceRecord is one price snapshot for a (model, pricing type, snapshot date).
// At most one row per (model, pricing type) should be current; readers
// tolerate violations by preferring the latest snapshot date.
type PriceRecord struct {
	ID               string      `json:"id"`
	ModelID          string      `json:"model_id"`
	ModelSlug        string      `json:"model_slug"`
	PricingType      PricingType `json:"pricing_type"`
	InputPrice1M     *float64    `json:"input_price_1m"`
	OutputPrice1M    *float64    `json:"output_price_1m"`
	CachedInput1M    *float64    `json:"cached_input_1m"`
	BatchInput1M     *float64    `json:"batch_input_1m"`
	BatchOutput1M    *float64    `json:"batch_output_1m"`
	ImagePrice       *float64    `json:"image_price"`
	SourceURL        string      `json:"source_url"`
	SourceName       string      `json:"source_name"`
	SourceConfidence Confidence  `json:"source_confidence"`
	FetchedAt        time.Time   `json:"fetched_at"`
	SnapshotDate     string      `json:"snapshot_date"`
	IsCurrent        bool        `json:"is_current"`
	CreatedAt        time.Time   `json:"created_at"`
}

// PriceRecordID builds the idempotent key for a price row.
func PriceRecordID(modelID, snapshotDate string, pt PricingType) string {
	return fmt.Sprintf("pricing_%s_%s_%s", modelID, snapshotDate, pt)
}

// NewPriceRecord builds a validated, current PriceRecord.
func NewPriceRecord(modelID, modelSlug string, pt PricingType, snapshotDate string) (*PriceRecord, error) {
	now := time.Now().UTC()
	p := &PriceRecord{
		ID:           PriceRecordID(modelID, snapshotDate, pt),
		ModelID:      modelID,
		ModelSlug:    modelSlug,
		PricingType:  pt,
		SnapshotDate: snapshotDate,
		IsCurrent:    true,
		FetchedAt:    now,
		CreatedAt:    now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks identifiers and rejects negative or non-finite prices.
func (p *PriceRecord) Validate() error {
	if strings.TrimSpace(p.ModelID) == "" {
		return eris.New("model: price record missing model id")
	}
	if p.PricingType != PricingTypeAPI && p.PricingType != PricingTypeConsumer {
		return eris.Errorf("model: price record %s has unknown pricing type %q", p.ID, p.PricingType)
	}
	if p.SnapshotDate == "" {
		return eris.Errorf("model: price record %s missing snapshot date", p.ID)
	}
	for name, v := range map[string]*float64{
		"input":        p.InputPrice1M,
		"output":       p.OutputPrice1M,
		"cached_input": p.CachedInput1M,
		"batch_input":  p.BatchInput1M,
		"batch_output": p.BatchOutput1M,
		"image":        p.ImagePrice,
	} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			return eris.Errorf("model: price record %s has invalid %s price", p.ID, name)
		}
	}
	return nil
}

// Input returns the input price or 0 when unknown.
func (p *PriceRecord) Input() float64 { return deref(p.InputPrice1M) }

// Output returns the output price or 0 when unknown.
func (p *PriceRecord) Output() float64 { return deref(p.OutputPrice1M) }

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
