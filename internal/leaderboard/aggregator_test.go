package leaderboard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/store"
)

var (
	latestDay = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	olderDay  = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leaderboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func writeScore(t *testing.T, st store.Store, id string, d model.Domain, score float64, at time.Time, mut func(*model.QualityScore)) {
	t.Helper()
	q, err := model.NewQualityScore(id, id, d, score, at)
	require.NoError(t, err)
	if mut != nil {
		mut(q)
	}
	require.NoError(t, st.UpsertQualityScore(context.Background(), q))
}

func writeAPIPrice(t *testing.T, st store.Store, id, date string, in, out float64) {
	t.Helper()
	p, err := model.NewPriceRecord(id, id, model.PricingTypeAPI, date)
	require.NoError(t, err)
	p.InputPrice1M, p.OutputPrice1M = &in, &out
	require.NoError(t, st.WriteCurrentPrice(context.Background(), p))
}

func writeMetric(t *testing.T, st store.Store, id string, d model.Domain, value float64, rank int, date string) {
	t.Helper()
	dm, err := model.NewDerivedMetric(id, id, d, 1000, 1, 1000, value, date)
	require.NoError(t, err)
	dm.ValueRank = rank
	require.NoError(t, st.UpsertDerivedMetric(context.Background(), dm))
}

// seedBoard writes four active models and one retired model:
//
//	m1 gpt-4o       quality+CI, priced 7.75 blended, value 50
//	m2 llama-3-70b  quality, priced 0.71 blended, value 100
//	m3 claude       quality, unpriced
//	m4 mistral      priced 0.48 blended, quality only on an older snapshot
func seedBoard(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st := newTestStore(t)
	ctx := context.Background()
	cw := 128000
	_, err := st.UpsertModels(ctx, []model.CatalogEntry{
		{ID: "m1", Slug: "gpt-4o", CanonicalName: "GPT-4o", VendorSlug: "openai", VendorName: "OpenAI",
			Modality: model.ModalityMultimodal, ContextWindow: &cw, Active: true},
		{ID: "m2", Slug: "llama-3-70b", CanonicalName: "Llama 3 70B", VendorSlug: "meta", VendorName: "Meta",
			Aliases: []string{"meta-llama-3-70b-instruct"}, IsOpenSource: true, Active: true},
		{ID: "m3", Slug: "claude-3-5-sonnet", CanonicalName: "Claude 3.5 Sonnet", VendorSlug: "anthropic", VendorName: "Anthropic", Active: true},
		{ID: "m4", Slug: "mistral-small", CanonicalName: "Mistral Small", VendorSlug: "mistral", VendorName: "Mistral", Active: true},
		{ID: "m5", Slug: "retired", CanonicalName: "Retired", VendorSlug: "openai", Active: false},
	})
	require.NoError(t, err)

	writeScore(t, st, "m1", model.DomainText, 1300, latestDay, func(q *model.QualityScore) {
		q.CILower, q.CIUpper, q.Votes = fptr(1290), fptr(1310), iptr(5000)
	})
	writeScore(t, st, "m2", model.DomainText, 1200, latestDay, func(q *model.QualityScore) { q.Votes = iptr(3000) })
	writeScore(t, st, "m3", model.DomainText, 1250, latestDay, nil)
	writeScore(t, st, "m4", model.DomainText, 1100, olderDay, nil)
	writeScore(t, st, "m5", model.DomainText, 1000, latestDay, nil)

	writeAPIPrice(t, st, "m1", "2025-03-01", 2.5, 10)
	writeAPIPrice(t, st, "m2", "2025-03-01", 0.5, 0.8)
	writeAPIPrice(t, st, "m4", "2025-03-01", 0.2, 0.6)

	writeMetric(t, st, "m1", model.DomainText, 50, 2, "2025-03-01")
	writeMetric(t, st, "m2", model.DomainText, 100, 1, "2025-03-01")
	return st
}

func slugs(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Model.Slug
	}
	return out
}

func query(t *testing.T, a *Aggregator, p Params) *Result {
	t.Helper()
	if p.Domain == "" {
		p.Domain = model.DomainText
	}
	res, err := a.Query(context.Background(), p)
	require.NoError(t, err)
	return res
}

func TestQuery_DefaultSortByValue(t *testing.T) {
	a := NewAggregator(seedBoard(t))
	res := query(t, a, Params{})

	assert.Equal(t, 4, res.Total)
	// Unscored models tie at 0 and fall back to canonical name, descending.
	assert.Equal(t, []string{"llama-3-70b", "gpt-4o", "mistral-small", "claude-3-5-sonnet"}, slugs(res.Entries))
	for i, e := range res.Entries {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestQuery_EntryFields(t *testing.T) {
	a := NewAggregator(seedBoard(t))
	res := query(t, a, Params{})
	bySlug := make(map[string]Entry)
	for _, e := range res.Entries {
		bySlug[e.Model.Slug] = e
	}

	gpt := bySlug["gpt-4o"]
	require.NotNil(t, gpt.QualityScore)
	assert.Equal(t, 1300.0, *gpt.QualityScore)
	assert.Equal(t, "±10", gpt.QualityCI)
	require.NotNil(t, gpt.Votes)
	assert.Equal(t, 5000, *gpt.Votes)
	require.NotNil(t, gpt.BlendedPrice1M)
	assert.InDelta(t, 7.75, *gpt.BlendedPrice1M, 1e-9)
	require.NotNil(t, gpt.ValueRank)
	assert.Equal(t, 2, *gpt.ValueRank)
	assert.True(t, gpt.HasArenaData)
	assert.True(t, gpt.HasPricingData)
	assert.Equal(t, "OpenAI", gpt.Model.VendorName)

	claude := bySlug["claude-3-5-sonnet"]
	assert.True(t, claude.HasArenaData)
	assert.False(t, claude.HasPricingData)
	assert.Nil(t, claude.BlendedPrice1M)
	assert.Nil(t, claude.ValueScore)
	assert.Empty(t, claude.QualityCI)

	mistral := bySlug["mistral-small"]
	assert.False(t, mistral.HasArenaData, "older snapshot scores are not shown")
	assert.Nil(t, mistral.QualityScore)
	assert.True(t, mistral.HasPricingData)
}

func TestQuery_Filters(t *testing.T) {
	a := NewAggregator(seedBoard(t))

	tests := []struct {
		name string
		p    Params
		want []string
	}{
		{"vendors", Params{Vendors: []string{"openai", " meta ", "openai"}}, []string{"llama-3-70b", "gpt-4o"}},
		{"modality", Params{Modality: model.ModalityMultimodal}, []string{"gpt-4o"}},
		{"search alias", Params{Search: "INSTRUCT"}, []string{"llama-3-70b"}},
		{"context min", Params{ContextMin: 100000}, []string{"gpt-4o"}},
		{"arena only", Params{ArenaOnly: true}, []string{"llama-3-70b", "gpt-4o", "claude-3-5-sonnet"}},
		// Unpriced models are not excluded by the price range.
		{"price range", Params{PriceMin: 0.5, PriceMax: 1}, []string{"llama-3-70b", "claude-3-5-sonnet"}},
		{"price min only", Params{PriceMin: 5}, []string{"gpt-4o", "claude-3-5-sonnet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := query(t, a, tt.p)
			assert.Equal(t, tt.want, slugs(res.Entries))
			assert.Equal(t, len(tt.want), res.Total)
		})
	}
}

func TestQuery_SortFields(t *testing.T) {
	a := NewAggregator(seedBoard(t))

	res := query(t, a, Params{SortField: SortBlendedPrice, SortDir: SortAsc})
	assert.Equal(t, []string{"claude-3-5-sonnet", "mistral-small", "llama-3-70b", "gpt-4o"}, slugs(res.Entries))

	res = query(t, a, Params{SortField: SortQualityScore})
	assert.Equal(t, []string{"gpt-4o", "claude-3-5-sonnet", "llama-3-70b", "mistral-small"}, slugs(res.Entries))

	res = query(t, a, Params{SortField: SortVotes})
	assert.Equal(t, []string{"gpt-4o", "llama-3-70b", "mistral-small", "claude-3-5-sonnet"}, slugs(res.Entries))
}

func TestQuery_Paging(t *testing.T) {
	a := NewAggregator(seedBoard(t))

	res := query(t, a, Params{Limit: 2, Offset: 1})
	assert.Equal(t, 4, res.Total)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, []string{"gpt-4o", "mistral-small"}, slugs(res.Entries))
	assert.Equal(t, 2, res.Entries[0].Rank)
	assert.Equal(t, 3, res.Entries[1].Rank)

	res = query(t, a, Params{Offset: 50})
	assert.Equal(t, 4, res.Total)
	assert.NotNil(t, res.Entries)
	assert.Empty(t, res.Entries)
}

func TestQuery_LegacyDomainKey(t *testing.T) {
	st := seedBoard(t)
	a := NewAggregator(st)

	res := query(t, a, Params{Domain: "overall"})
	assert.Equal(t, 4, res.Total)

	_, err := a.Query(context.Background(), Params{Domain: "poetry"})
	assert.Error(t, err)
}

func TestQuery_DomainsAreIndependent(t *testing.T) {
	st := seedBoard(t)
	writeScore(t, st, "m4", model.DomainCode, 1400, latestDay, nil)
	a := NewAggregator(st)

	res := query(t, a, Params{Domain: model.DomainCode, ArenaOnly: true})
	assert.Equal(t, []string{"mistral-small"}, slugs(res.Entries))
	assert.Nil(t, res.Entries[0].ValueScore)
}

func TestQuery_Freshness(t *testing.T) {
	st := seedBoard(t)
	ctx := context.Background()
	snap, err := st.CreateSnapshot(ctx, model.SourceArena, "2025-03-01")
	require.NoError(t, err)
	require.NoError(t, st.CompleteSnapshot(ctx, snap.ID, model.RunStatusCompleted, 4, ""))

	res := query(t, NewAggregator(st), Params{})
	assert.NotNil(t, res.Freshness.QualityLastUpdated)
	assert.Nil(t, res.Freshness.PricingLastUpdated)
}

func TestParams_Normalize(t *testing.T) {
	p, err := Params{Domain: "Coding", SortField: "bogus", SortDir: "sideways", Limit: 999, Offset: -3, PriceMin: -1}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, model.DomainCode, p.Domain)
	assert.Equal(t, SortValueScore, p.SortField)
	assert.Equal(t, SortDesc, p.SortDir)
	assert.Equal(t, MaxLimit, p.Limit)
	assert.Zero(t, p.Offset)
	assert.Zero(t, p.PriceMin)
	assert.Greater(t, p.PriceMax, 1e300)

	p, err = Params{Domain: "text"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, p.Limit)
}

func TestFormatCI(t *testing.T) {
	assert.Equal(t, "±5", formatCI(fptr(10), fptr(20)))
	assert.Equal(t, "±3", formatCI(fptr(10), fptr(15))) // 2.5 rounds away from zero
	assert.Empty(t, formatCI(fptr(10), fptr(10.4)))
	assert.Empty(t, formatCI(nil, fptr(10)))
	assert.Empty(t, formatCI(fptr(10), nil))
}
