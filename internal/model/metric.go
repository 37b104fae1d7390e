package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DerivedMetric is the computed value ranking of a model within a domain.
// It is fully derived from quality scores and prices and never hand-edited.
type DerivedMetric struct {
	ID               string    `json:"id"`
	ModelID          string    `json:"model_id"`
	ModelSlug        string    `json:"model_slug"`
	Domain           Domain    `json:"domain"`
	QualityScore     float64   `json:"quality_score"`
	BlendedPrice1M   float64   `json:"blended_price_1m"`
	QualityPerDollar float64   `json:"quality_per_dollar"`
	DollarPerQuality *float64  `json:"dollar_per_quality,omitempty"`
	ValueScore       float64   `json:"value_score"`
	ValueRank        int       `json:"value_rank"`
	SnapshotDate     string    `json:"snapshot_date"`
	ComputedAt       time.Time `json:"computed_at"`
}

// DerivedMetricID builds the idempotent key for a derived metric row.
func DerivedMetricID(modelID string, domain Domain) string {
	return fmt.Sprintf("metric_%s_%s", modelID, domain)
}

// NewDerivedMetric builds a validated metric for (modelID, domain).
func NewDerivedMetric(modelID, modelSlug string, domain Domain, quality, blended, qpd, valueScore float64, snapshotDate string) (*DerivedMetric, error) {
	m := &DerivedMetric{
		ID:               DerivedMetricID(modelID, domain),
		ModelID:          modelID,
		ModelSlug:        modelSlug,
		Domain:           domain,
		QualityScore:     quality,
		BlendedPrice1M:   blended,
		QualityPerDollar: qpd,
		ValueScore:       valueScore,
		SnapshotDate:     snapshotDate,
		ComputedAt:       time.Now().UTC(),
	}
	// Free or unscored models have no meaningful cost per quality point.
	if quality > 0 && blended > 0 {
		dpq := blended / quality
		m.DollarPerQuality = &dpq
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks identifiers and the value score range.
func (m *DerivedMetric) Validate() error {
	if strings.TrimSpace(m.ModelID) == "" {
		return eris.New("model: derived metric missing model id")
	}
	if !m.Domain.IsKnown() {
		return eris.Errorf("model: derived metric %s has unknown domain %q", m.ID, m.Domain)
	}
	if math.IsNaN(m.ValueScore) || m.ValueScore < 0 || m.ValueScore > 100 {
		return eris.Errorf("model: derived metric %s value score %v out of range", m.ID, m.ValueScore)
	}
	return nil
}
