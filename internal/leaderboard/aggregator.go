// Package leaderboard joins catalog, quality, price and derived metric rows
// for one domain into filtered, sorted and paginated views.
package leaderboard

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/scoring"
	"github.com/sells-group/valueboard/internal/store"
)

// SortField selects the value entries are ordered by.
type SortField string

const (
	SortQualityScore SortField = "qualityScore"
	SortValueScore   SortField = "valueScore"
	SortBlendedPrice SortField = "blendedPrice1m"
	SortVotes        SortField = "votes"
)

// SortDir is asc or desc.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Paging limits.
const (
	DefaultLimit = 100
	MaxLimit     = 200
)

// Params is a leaderboard query.
type Params struct {
	Domain     model.Domain   `json:"domain"`
	SortField  SortField      `json:"sort_field"`
	SortDir    SortDir        `json:"sort_dir"`
	Vendors    []string       `json:"vendors,omitempty"`
	PriceMin   float64        `json:"price_min"`
	PriceMax   float64        `json:"price_max"` // 0 means unbounded
	ContextMin int            `json:"context_min"`
	Modality   model.Modality `json:"modality,omitempty"`
	ArenaOnly  bool           `json:"arena_only"`
	Search     string         `json:"search,omitempty"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// Normalize resolves the domain and applies defaults and bounds.
func (p Params) Normalize() (Params, error) {
	d, err := model.ResolveDomain(string(p.Domain))
	if err != nil {
		return p, eris.Wrap(err, "leaderboard: params")
	}
	p.Domain = d
	switch p.SortField {
	case SortQualityScore, SortValueScore, SortBlendedPrice, SortVotes:
	default:
		p.SortField = SortValueScore
	}
	if p.SortDir != SortAsc {
		p.SortDir = SortDesc
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	p.Limit = min(p.Limit, MaxLimit)
	p.Offset = max(p.Offset, 0)
	p.PriceMin = max(p.PriceMin, 0)
	if p.PriceMax <= 0 {
		p.PriceMax = math.MaxFloat64
	}
	p.ContextMin = max(p.ContextMin, 0)
	p.Search = strings.TrimSpace(p.Search)
	vendors := make([]string, 0, len(p.Vendors))
	for _, v := range p.Vendors {
		if v = strings.TrimSpace(v); v != "" {
			vendors = append(vendors, v)
		}
	}
	slices.Sort(vendors)
	p.Vendors = slices.Compact(vendors)
	return p, nil
}

// ModelSummary is the catalog part of an entry.
type ModelSummary struct {
	ID            string         `json:"id"`
	Slug          string         `json:"slug"`
	CanonicalName string         `json:"canonical_name"`
	Family        string         `json:"family,omitempty"`
	Modality      model.Modality `json:"modality"`
	ContextWindow *int           `json:"context_window"`
	VendorSlug    string         `json:"vendor_slug"`
	VendorName    string         `json:"vendor_name"`
	IsOpenSource  bool           `json:"is_open_source"`
}

// Entry is one leaderboard row. Missing inputs are nil rather than zero.
type Entry struct {
	Rank             int          `json:"rank"`
	Model            ModelSummary `json:"model"`
	QualityScore     *float64     `json:"quality_score"`
	QualityCI        string       `json:"quality_ci,omitempty"`
	Votes            *int         `json:"votes"`
	BlendedPrice1M   *float64     `json:"blended_price_1m"`
	InputPrice1M     *float64     `json:"input_price_1m"`
	OutputPrice1M    *float64     `json:"output_price_1m"`
	QualityPerDollar *float64     `json:"quality_per_dollar"`
	ValueScore       *float64     `json:"value_score"`
	ValueRank        *int         `json:"value_rank"`
	HasArenaData     bool         `json:"has_arena_data"`
	HasPricingData   bool         `json:"has_pricing_data"`
}

// Result is a page of entries with the pre-pagination total.
type Result struct {
	Entries   []Entry         `json:"entries"`
	Total     int             `json:"total"`
	Freshness model.Freshness `json:"freshness"`
}

// Querier answers leaderboard queries.
type Querier interface {
	Query(ctx context.Context, p Params) (*Result, error)
}

// Store is the persistence the aggregator reads.
type Store interface {
	store.CatalogStore
	store.QualityStore
	store.PriceStore
	store.MetricStore
	store.SnapshotStore
}

// Aggregator builds leaderboard views straight from the store.
type Aggregator struct {
	store Store
}

// NewAggregator creates an Aggregator.
func NewAggregator(st Store) *Aggregator {
	return &Aggregator{store: st}
}

type pricing struct {
	input, output *float64
	blended       float64
}

// Query implements Querier.
func (a *Aggregator) Query(ctx context.Context, p Params) (*Result, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		models    []model.CatalogEntry
		qualities []model.QualityScore
		prices    []model.PriceRecord
		metrics   []model.DerivedMetric
		freshness model.Freshness
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		models, err = a.store.ListModels(gctx, true)
		return err
	})
	g.Go(func() (err error) {
		qualities, err = a.store.ListQualityScores(gctx, p.Domain)
		return err
	})
	g.Go(func() (err error) {
		prices, err = a.store.ListCurrentPrices(gctx, model.PricingTypeAPI)
		return err
	})
	g.Go(func() (err error) {
		metrics, err = a.store.ListDerivedMetrics(gctx, p.Domain)
		return err
	})
	g.Go(func() (err error) {
		freshness, err = a.freshness(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "leaderboard: load")
	}

	quality := latestSnapshotScores(qualities)
	priceByModel := make(map[string]pricing, len(prices))
	for _, pr := range prices {
		pc := pricing{input: pr.InputPrice1M, output: pr.OutputPrice1M}
		if pr.InputPrice1M != nil && pr.OutputPrice1M != nil {
			pc.blended = scoring.BlendedPrice(*pr.InputPrice1M, *pr.OutputPrice1M)
		}
		priceByModel[pr.ModelID] = pc
	}
	metricByModel := make(map[string]model.DerivedMetric, len(metrics))
	for _, m := range metrics {
		metricByModel[m.ModelID] = m
	}

	var entries []Entry
	for _, m := range models {
		if !p.matchesModel(m) {
			continue
		}
		pc, hasPrice := priceByModel[m.ID]
		if hasPrice && (pc.blended < p.PriceMin || pc.blended > p.PriceMax) {
			continue
		}
		q, hasQuality := quality[m.ID]
		if p.ArenaOnly && !hasQuality {
			continue
		}
		var mp *model.DerivedMetric
		if dm, ok := metricByModel[m.ID]; ok {
			mp = &dm
		}
		entries = append(entries, buildEntry(m, q, hasQuality, pc, hasPrice, mp))
	}

	sortEntries(entries, p.SortField, p.SortDir)

	total := len(entries)
	start := min(p.Offset, total)
	end := min(start+p.Limit, total)
	page := entries[start:end]
	for i := range page {
		page[i].Rank = p.Offset + i + 1
	}
	if page == nil {
		page = []Entry{}
	}
	return &Result{Entries: page, Total: total, Freshness: freshness}, nil
}

func (p Params) matchesModel(m model.CatalogEntry) bool {
	if len(p.Vendors) > 0 && !slices.Contains(p.Vendors, m.VendorSlug) {
		return false
	}
	if p.Modality != "" && m.Modality != p.Modality {
		return false
	}
	if p.Search != "" && !m.MatchesSearch(p.Search) {
		return false
	}
	if p.ContextMin > 0 && (m.ContextWindow == nil || *m.ContextWindow < p.ContextMin) {
		return false
	}
	return true
}

func buildEntry(m model.CatalogEntry, q model.QualityScore, hasQuality bool, pc pricing, hasPrice bool, dm *model.DerivedMetric) Entry {
	e := Entry{
		Model: ModelSummary{
			ID:            m.ID,
			Slug:          m.Slug,
			CanonicalName: m.CanonicalName,
			Family:        m.Family,
			Modality:      m.Modality,
			ContextWindow: m.ContextWindow,
			VendorSlug:    m.VendorSlug,
			VendorName:    m.VendorName,
			IsOpenSource:  m.IsOpenSource,
		},
		HasArenaData:   hasQuality,
		HasPricingData: hasPrice,
	}
	if hasQuality {
		score := q.Score
		e.QualityScore = &score
		e.QualityCI = formatCI(q.CILower, q.CIUpper)
		e.Votes = q.Votes
	}
	if hasPrice {
		blended := pc.blended
		e.BlendedPrice1M = &blended
		e.InputPrice1M = pc.input
		e.OutputPrice1M = pc.output
	}
	if dm != nil {
		if e.QualityScore == nil {
			score := dm.QualityScore
			e.QualityScore = &score
		}
		if e.BlendedPrice1M == nil {
			blended := dm.BlendedPrice1M
			e.BlendedPrice1M = &blended
		}
		qpd, vs, vr := dm.QualityPerDollar, dm.ValueScore, dm.ValueRank
		e.QualityPerDollar = &qpd
		e.ValueScore = &vs
		e.ValueRank = &vr
	}
	return e
}

// latestSnapshotScores keeps only scores from the domain's most recent
// snapshot date, one per model.
func latestSnapshotScores(rows []model.QualityScore) map[string]model.QualityScore {
	latest := ""
	for _, q := range rows {
		if q.SnapshotDate > latest {
			latest = q.SnapshotDate
		}
	}
	out := make(map[string]model.QualityScore)
	for _, q := range rows {
		if q.SnapshotDate != latest {
			continue
		}
		if _, ok := out[q.ModelID]; !ok {
			out[q.ModelID] = q
		}
	}
	return out
}

// formatCI renders the half-width of a confidence interval as "±N", or ""
// when either bound is missing or the rounded half-width is not positive.
func formatCI(lower, upper *float64) string {
	if lower == nil || upper == nil {
		return ""
	}
	half := math.Round((*upper - *lower) / 2)
	if half <= 0 {
		return ""
	}
	return fmt.Sprintf("±%d", int(half))
}

func sortValue(e Entry, f SortField) float64 {
	switch f {
	case SortQualityScore:
		return deref(e.QualityScore)
	case SortBlendedPrice:
		return deref(e.BlendedPrice1M)
	case SortVotes:
		if e.Votes == nil {
			return 0
		}
		return float64(*e.Votes)
	default:
		return deref(e.ValueScore)
	}
}

// sortEntries orders by field, treating nil as 0, then by canonical name.
// The direction applies to both keys.
func sortEntries(entries []Entry, f SortField, dir SortDir) {
	desc := dir == SortDesc
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := sortValue(entries[i], f), sortValue(entries[j], f)
		if a != b {
			if desc {
				return a > b
			}
			return a < b
		}
		c := strings.Compare(entries[i].Model.CanonicalName, entries[j].Model.CanonicalName)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func (a *Aggregator) freshness(ctx context.Context) (model.Freshness, error) {
	var f model.Freshness
	arena, err := a.store.LatestCompletedSnapshot(ctx, model.SourceArena)
	if err != nil {
		return f, err
	}
	if arena != nil {
		f.QualityLastUpdated = arena.CompletedAt
	}
	pr, err := a.store.LatestCompletedSnapshot(ctx, model.SourcePricing)
	if err != nil {
		return f, err
	}
	if pr != nil {
		f.PricingLastUpdated = pr.CompletedAt
	}
	return f, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
