// Package store persists the catalog, quality scores, price records, derived
// metrics and run snapshots.
package store

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/model"
)

// CatalogStore reads and seeds canonical model records.
type CatalogStore interface {
	UpsertModels(ctx context.Context, models []model.CatalogEntry) (int64, error)
	ListModels(ctx context.Context, activeOnly bool) ([]model.CatalogEntry, error)
	GetModelBySlug(ctx context.Context, slug string) (*model.CatalogEntry, error)
}

// QualityStore persists benchmark scores. Reads fold legacy domain keys onto
// the current domain.
type QualityStore interface {
	UpsertQualityScore(ctx context.Context, q *model.QualityScore) error
	ListQualityScores(ctx context.Context, domain model.Domain) ([]model.QualityScore, error)
	ListModelQualityScores(ctx context.Context, modelID string) ([]model.QualityScore, error)
}

// PriceStore persists price records.
//
// Writing a current price is a two-phase protocol: flip every other current
// row for (model, pricing type) to non-current, then upsert the new row as
// current. Both backends run the phases in one transaction. Readers still
// tolerate zero or several current rows (e.g. rows written by an older
// non-transactional writer) by taking the latest snapshot date.
type PriceStore interface {
	WriteCurrentPrice(ctx context.Context, p *model.PriceRecord) error
	GetCurrentPrice(ctx context.Context, modelID string, pt model.PricingType) (*model.PriceRecord, error)
	ListCurrentPrices(ctx context.Context, pt model.PricingType) ([]model.PriceRecord, error)
	ListPriceHistory(ctx context.Context, modelID string, pt model.PricingType, since string) ([]model.PriceRecord, error)
}

// MetricStore persists derived value metrics.
type MetricStore interface {
	UpsertDerivedMetric(ctx context.Context, m *model.DerivedMetric) error
	ListDerivedMetrics(ctx context.Context, domain model.Domain) ([]model.DerivedMetric, error)
	UpdateValueRanks(ctx context.Context, ranks map[string]int) error
}

// SnapshotStore records ingest runs.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, source, snapshotDate string) (*model.DataSnapshot, error)
	CompleteSnapshot(ctx context.Context, id string, status model.RunStatus, records int, errMsg string) error
	LatestCompletedSnapshot(ctx context.Context, source string) (*model.DataSnapshot, error)
	ListSnapshots(ctx context.Context, source string, limit int) ([]model.DataSnapshot, error)
}

// Store defines the full persistence interface.
type Store interface {
	CatalogStore
	QualityStore
	PriceStore
	MetricStore
	SnapshotStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// latestPerModel keeps the row with the greatest snapshot date per model.
// Input order breaks ties.
func latestPerModel(rows []model.PriceRecord) []model.PriceRecord {
	best := make(map[string]int, len(rows))
	var order []string
	for i, r := range rows {
		j, ok := best[r.ModelID]
		if !ok {
			order = append(order, r.ModelID)
			best[r.ModelID] = i
			continue
		}
		if r.SnapshotDate > rows[j].SnapshotDate {
			best[r.ModelID] = i
		}
	}
	if len(best) < len(rows) {
		zap.L().Warn("store: multiple current price rows, using latest snapshot",
			zap.Int("rows", len(rows)),
			zap.Int("models", len(best)),
		)
	}
	out := make([]model.PriceRecord, 0, len(order))
	for _, id := range order {
		out = append(out, rows[best[id]])
	}
	return out
}

// validQualityScores folds legacy domain keys and drops rows that fail
// validation.
func validQualityScores(rows []model.QualityScore) []model.QualityScore {
	out := rows[:0]
	for _, q := range rows {
		d, err := model.ResolveDomain(string(q.Domain))
		if err == nil {
			q.Domain = d
			err = q.Validate()
		}
		if err != nil {
			zap.L().Warn("store: dropping invalid quality score", zap.String("id", q.ID), zap.Error(err))
			continue
		}
		out = append(out, q)
	}
	return out
}

func validPrices(rows []model.PriceRecord) []model.PriceRecord {
	out := rows[:0]
	for _, p := range rows {
		if err := p.Validate(); err != nil {
			zap.L().Warn("store: dropping invalid price record", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

// validMetrics folds legacy domain keys, drops invalid rows and keeps one
// metric per model, preferring rows stored under the current domain key.
func validMetrics(rows []model.DerivedMetric, domain model.Domain) []model.DerivedMetric {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Domain == domain && rows[j].Domain != domain
	})
	seen := make(map[string]bool, len(rows))
	out := make([]model.DerivedMetric, 0, len(rows))
	for _, m := range rows {
		m.Domain = domain
		if err := m.Validate(); err != nil {
			zap.L().Warn("store: dropping invalid derived metric", zap.String("id", m.ID), zap.Error(err))
			continue
		}
		if seen[m.ModelID] {
			continue
		}
		seen[m.ModelID] = true
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sortedIDs returns the keys of ranks in ascending order.
func sortedIDs(ranks map[string]int) []string {
	ids := make([]string, 0, len(ranks))
	for id := range ranks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
