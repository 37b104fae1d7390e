package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the snapshot date format used in record keys.
const DateLayout = "2006-01-02"

// QualityScore is one benchmark score for a (model, domain, snapshot date).
type QualityScore struct {
	ID           string    `json:"id"`
	ModelID      string    `json:"model_id"`
	ModelSlug    string    `json:"model_slug"`
	Domain       Domain    `json:"domain"`
	Score        float64   `json:"score"`
	CILower      *float64  `json:"ci_lower,omitempty"`
	CIUpper      *float64  `json:"ci_upper,omitempty"`
	Rank         *int      `json:"rank,omitempty"`
	Votes        *int      `json:"votes,omitempty"`
	SnapshotDate string    `json:"snapshot_date"`
	CreatedAt    time.Time `json:"created_at"`
}

// QualityScoreID builds the idempotent key for a quality score row.
func QualityScoreID(modelID string, domain Domain, snapshotDate string) string {
	return fmt.Sprintf("quality_%s_%s_%s", modelID, domain, snapshotDate)
}

// NewQualityScore builds a validated QualityScore keyed by model, domain and day.
func NewQualityScore(modelID, modelSlug string, domain Domain, score float64, snapshot time.Time) (*QualityScore, error) {
	date := snapshot.UTC().Format(DateLayout)
	q := &QualityScore{
		ID:           QualityScoreID(modelID, domain, date),
		ModelID:      modelID,
		ModelSlug:    modelSlug,
		Domain:       domain,
		Score:        score,
		SnapshotDate: date,
		CreatedAt:    time.Now().UTC(),
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks the fields scoring depends on.
func (q *QualityScore) Validate() error {
	if strings.TrimSpace(q.ModelID) == "" {
		return eris.New("model: quality score missing model id")
	}
	if !q.Domain.IsKnown() {
		return eris.Errorf("model: quality score %s has unknown domain %q", q.ID, q.Domain)
	}
	if math.IsNaN(q.Score) || math.IsInf(q.Score, 0) {
		return eris.Errorf("model: quality score %s is not finite", q.ID)
	}
	if q.SnapshotDate == "" {
		return eris.Errorf("model: quality score %s missing snapshot date", q.ID)
	}
	return nil
}
