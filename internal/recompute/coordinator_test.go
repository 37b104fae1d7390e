package recompute

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/store"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "recompute.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func writeQuality(t *testing.T, st store.Store, modelID string, d model.Domain, score float64) *model.QualityScore {
	t.Helper()
	q, err := model.NewQualityScore(modelID, modelID, d, score, fixedNow)
	require.NoError(t, err)
	require.NoError(t, st.UpsertQualityScore(context.Background(), q))
	return q
}

func writePrice(t *testing.T, st store.Store, modelID, date string, in, out float64) *model.PriceRecord {
	t.Helper()
	p, err := model.NewPriceRecord(modelID, modelID, model.PricingTypeAPI, date)
	require.NoError(t, err)
	p.InputPrice1M = &in
	p.OutputPrice1M = &out
	require.NoError(t, st.WriteCurrentPrice(context.Background(), p))
	return p
}

func metricsByModel(t *testing.T, st store.Store, d model.Domain) map[string]model.DerivedMetric {
	t.Helper()
	ms, err := st.ListDerivedMetrics(context.Background(), d)
	require.NoError(t, err)
	out := make(map[string]model.DerivedMetric, len(ms))
	for _, m := range ms {
		out[m.ModelID] = m
	}
	return out
}

// seedCodeDomain writes three priced models in the code domain:
// a is expensive, b mid, c cheapest per unit of quality.
func seedCodeDomain(t *testing.T, st store.Store) {
	t.Helper()
	writeQuality(t, st, "a", model.DomainCode, 1300)
	writeQuality(t, st, "b", model.DomainCode, 1200)
	writeQuality(t, st, "c", model.DomainCode, 1100)
	writePrice(t, st, "a", "2025-02-01", 10, 30)
	writePrice(t, st, "b", "2025-02-01", 1, 2)
	writePrice(t, st, "c", "2025-02-01", 0.5, 1.5)
}

func TestOnQualityScoreWritten_NoPriceIsNoop(t *testing.T) {
	st := newTestStore(t)
	c := NewCoordinator(st, WithClock(func() time.Time { return fixedNow }))

	q := writeQuality(t, st, "a", model.DomainText, 1250)
	require.NoError(t, c.OnQualityScoreWritten(context.Background(), q))

	assert.Empty(t, metricsByModel(t, st, model.DomainText))
}

func TestRecomputeDomain_ScoresAndRanksAll(t *testing.T) {
	st := newTestStore(t)
	seedCodeDomain(t, st)
	c := NewCoordinator(st, WithClock(func() time.Time { return fixedNow }))

	n, err := c.RecomputeDomain(context.Background(), model.DomainCode)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ms := metricsByModel(t, st, model.DomainCode)
	require.Len(t, ms, 3)
	assert.Equal(t, 1, ms["c"].ValueRank)
	assert.Equal(t, 2, ms["b"].ValueRank)
	assert.Equal(t, 3, ms["a"].ValueRank)
	assert.Equal(t, 0.0, ms["a"].ValueScore)
	assert.InDelta(t, 24.0, ms["a"].BlendedPrice1M, 1e-9)
	assert.Equal(t, "2025-03-01", ms["a"].SnapshotDate)
	require.NotNil(t, ms["a"].DollarPerQuality)
	assert.InDelta(t, 24.0/1300, *ms["a"].DollarPerQuality, 1e-12)
}

func TestOnPriceWritten_ReranksWholeDomain(t *testing.T) {
	st := newTestStore(t)
	seedCodeDomain(t, st)
	c := NewCoordinator(st, WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	_, err := c.RecomputeDomain(ctx, model.DomainCode)
	require.NoError(t, err)

	// a becomes the cheapest per unit of quality.
	p := writePrice(t, st, "a", "2025-03-01", 0.1, 0.2)
	require.NoError(t, c.OnPriceWritten(ctx, p))

	ms := metricsByModel(t, st, model.DomainCode)
	require.Len(t, ms, 3)
	assert.Equal(t, 1, ms["a"].ValueRank)
	assert.Equal(t, 2, ms["c"].ValueRank)
	assert.Equal(t, 3, ms["b"].ValueRank)
	assert.InDelta(t, 0.17, ms["a"].BlendedPrice1M, 1e-9)

	ranks := map[int]bool{}
	for _, m := range ms {
		ranks[m.ValueRank] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, ranks)
}

func TestOnPriceWritten_EveryDomainWithQuality(t *testing.T) {
	st := newTestStore(t)
	writeQuality(t, st, "a", model.DomainCode, 1300)
	writeQuality(t, st, "a", model.DomainMath, 1250)
	writeQuality(t, st, "b", model.DomainMath, 1200)
	writePrice(t, st, "b", "2025-02-01", 1, 2)
	c := NewCoordinator(st, WithClock(func() time.Time { return fixedNow }))

	p := writePrice(t, st, "a", "2025-03-01", 3, 15)
	require.NoError(t, c.OnPriceWritten(context.Background(), p))

	assert.Contains(t, metricsByModel(t, st, model.DomainCode), "a")
	math := metricsByModel(t, st, model.DomainMath)
	assert.Contains(t, math, "a")
	assert.NotContains(t, math, "b", "only the triggering model's metric is persisted")
}

func TestOnPriceWritten_IgnoresNonCurrent(t *testing.T) {
	st := newTestStore(t)
	writeQuality(t, st, "a", model.DomainCode, 1300)
	c := NewCoordinator(st)

	p, err := model.NewPriceRecord("a", "a", model.PricingTypeAPI, "2025-03-01")
	require.NoError(t, err)
	p.IsCurrent = false
	require.NoError(t, c.OnPriceWritten(context.Background(), p))

	assert.Empty(t, metricsByModel(t, st, model.DomainCode))
}

func TestOnQualityScoreWritten_UsesEventScore(t *testing.T) {
	st := newTestStore(t)
	seedCodeDomain(t, st)
	c := NewCoordinator(st, WithClock(func() time.Time { return fixedNow }))

	// Not yet visible in the store.
	q, err := model.NewQualityScore("b", "b", model.DomainCode, 1500, fixedNow.Add(24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, c.OnQualityScoreWritten(context.Background(), q))

	ms := metricsByModel(t, st, model.DomainCode)
	require.Contains(t, ms, "b")
	assert.Equal(t, 1500.0, ms["b"].QualityScore)
	assert.Equal(t, 1, ms["b"].ValueRank)
}

func TestOnQualityScoreWritten_LegacyDomainKey(t *testing.T) {
	st := newTestStore(t)
	seedCodeDomain(t, st)
	c := NewCoordinator(st, WithClock(func() time.Time { return fixedNow }))

	q := &model.QualityScore{ID: "legacy", ModelID: "c", ModelSlug: "c", Domain: "coding", Score: 1100, SnapshotDate: "2025-03-01"}
	require.NoError(t, c.OnQualityScoreWritten(context.Background(), q))

	ms := metricsByModel(t, st, model.DomainCode)
	require.Contains(t, ms, "c")
	assert.Equal(t, model.DomainCode, ms["c"].Domain)
}

func TestOnQualityScoreWritten_UnknownDomain(t *testing.T) {
	c := NewCoordinator(newTestStore(t))
	err := c.OnQualityScoreWritten(context.Background(), &model.QualityScore{ModelID: "a", Domain: "astrology"})
	require.Error(t, err)
}

type mockInvalidator struct{ mock.Mock }

func (m *mockInvalidator) Invalidate(ctx context.Context, d model.Domain) error {
	return m.Called(ctx, d).Error(0)
}

func TestRerankDomain_CallsInvalidator(t *testing.T) {
	st := newTestStore(t)
	seedCodeDomain(t, st)
	inv := &mockInvalidator{}
	inv.On("Invalidate", mock.Anything, model.DomainCode).Return(nil)

	c := NewCoordinator(st, WithInvalidator(inv))
	_, err := c.RecomputeDomain(context.Background(), model.DomainCode)
	require.NoError(t, err)
	inv.AssertNumberOfCalls(t, "Invalidate", 1)
}

func TestOnQualityScoreWritten_NoPriceStillInvalidates(t *testing.T) {
	st := newTestStore(t)
	inv := &mockInvalidator{}
	inv.On("Invalidate", mock.Anything, model.DomainText).Return(nil)

	c := NewCoordinator(st, WithInvalidator(inv))
	q := writeQuality(t, st, "a", model.DomainText, 1250)
	require.NoError(t, c.OnQualityScoreWritten(context.Background(), q))

	assert.Empty(t, metricsByModel(t, st, model.DomainText))
	inv.AssertNumberOfCalls(t, "Invalidate", 1)
}

func TestOnPriceWritten_InvalidatesDomainsWithoutQuality(t *testing.T) {
	st := newTestStore(t)
	seedCodeDomain(t, st)
	inv := &mockInvalidator{}
	inv.On("Invalidate", mock.Anything, mock.Anything).Return(nil)

	c := NewCoordinator(st, WithInvalidator(inv), WithClock(func() time.Time { return fixedNow }))
	p := writePrice(t, st, "b", "2025-03-01", 0.8, 1.6)
	require.NoError(t, c.OnPriceWritten(context.Background(), p))

	// code is reranked, every other domain only lists b's new price.
	inv.AssertNumberOfCalls(t, "Invalidate", len(model.Domains))
	for _, d := range model.Domains {
		inv.AssertCalled(t, "Invalidate", mock.Anything, d)
	}
}

func TestOnPriceWritten_InvalidateErrorIsNotFatal(t *testing.T) {
	st := newTestStore(t)
	inv := &mockInvalidator{}
	inv.On("Invalidate", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	c := NewCoordinator(st, WithInvalidator(inv))
	p := writePrice(t, st, "orphan", "2025-03-01", 1, 2)
	require.NoError(t, c.OnPriceWritten(context.Background(), p))
	inv.AssertNumberOfCalls(t, "Invalidate", len(model.Domains))
}

func TestRecomputeModel_Idempotent(t *testing.T) {
	st := newTestStore(t)
	seedCodeDomain(t, st)
	c := NewCoordinator(st, WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	require.NoError(t, c.RecomputeModel(ctx, "b", model.DomainCode))
	first := metricsByModel(t, st, model.DomainCode)["b"]
	require.NoError(t, c.RecomputeModel(ctx, "b", model.DomainCode))
	second := metricsByModel(t, st, model.DomainCode)["b"]

	assert.Equal(t, first.ValueScore, second.ValueScore)
	assert.Equal(t, first.ValueRank, second.ValueRank)
	assert.Len(t, metricsByModel(t, st, model.DomainCode), 1)
}

func TestLatestQuality(t *testing.T) {
	set := latestQuality([]model.QualityScore{
		{ModelID: "a", Score: 1, SnapshotDate: "2025-01-01"},
		{ModelID: "b", Score: 2, SnapshotDate: "2025-01-01"},
		{ModelID: "a", Score: 3, SnapshotDate: "2025-02-01"},
		{ModelID: "b", Score: 4, SnapshotDate: "2025-01-01"},
	})
	assert.Equal(t, []string{"a", "b"}, set.order)
	assert.Equal(t, 3.0, set.byModel["a"].Score)
	assert.Equal(t, 2.0, set.byModel["b"].Score)
}
