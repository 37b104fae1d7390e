package leaderboard

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/scoring"
)

// Window is a history lookback.
type Window string

const (
	Window30d  Window = "30d"
	Window90d  Window = "90d"
	Window180d Window = "180d"
	Window365d Window = "365d"
	WindowAll  Window = "all"
)

var windowDays = map[Window]int{
	Window30d:  30,
	Window90d:  90,
	Window180d: 180,
	Window365d: 365,
}

// ParseWindow maps s to a Window, defaulting to 30d.
func ParseWindow(s string) Window {
	w := Window(s)
	if _, ok := windowDays[w]; ok || w == WindowAll {
		return w
	}
	return Window30d
}

// Since returns the earliest snapshot date inside the window, or "" for all.
func (w Window) Since(now time.Time) string {
	days, ok := windowDays[w]
	if !ok {
		return ""
	}
	return now.UTC().AddDate(0, 0, -days).Format(model.DateLayout)
}

// Point is one day of a model's history.
type Point struct {
	SnapshotDate   string   `json:"snapshot_date"`
	InputPrice1M   *float64 `json:"input_price_1m"`
	OutputPrice1M  *float64 `json:"output_price_1m"`
	BlendedPrice1M *float64 `json:"blended_price_1m"`
	QualityScore   *float64 `json:"quality_score"`
	ValueScore     *float64 `json:"value_score"`
}

// Series is the history of one model.
type Series struct {
	ModelSlug string  `json:"model_slug"`
	Points    []Point `json:"points"`
}

// HistoryDomain is the domain quality and value history is reported for.
const HistoryDomain = model.DomainText

// History returns a daily series per slug of API prices, text-domain
// quality and the current text-domain value score, oldest first. Unknown
// slugs yield an empty series.
func (a *Aggregator) History(ctx context.Context, slugs []string, w Window, now time.Time) ([]Series, error) {
	since := w.Since(now)
	out := make([]Series, 0, len(slugs))
	seen := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		points, err := a.modelHistory(ctx, slug, since)
		if err != nil {
			return nil, err
		}
		out = append(out, Series{ModelSlug: slug, Points: points})
	}
	return out, nil
}

func (a *Aggregator) modelHistory(ctx context.Context, slug, since string) ([]Point, error) {
	m, err := a.store.GetModelBySlug(ctx, slug)
	if err != nil {
		return nil, eris.Wrapf(err, "leaderboard: history model %s", slug)
	}
	if m == nil {
		return []Point{}, nil
	}

	byDate := make(map[string]*Point)
	point := func(date string) *Point {
		p, ok := byDate[date]
		if !ok {
			p = &Point{SnapshotDate: date}
			byDate[date] = p
		}
		return p
	}

	prices, err := a.store.ListPriceHistory(ctx, m.ID, model.PricingTypeAPI, since)
	if err != nil {
		return nil, eris.Wrapf(err, "leaderboard: price history %s", slug)
	}
	for _, pr := range prices {
		p := point(pr.SnapshotDate)
		p.InputPrice1M, p.OutputPrice1M = pr.InputPrice1M, pr.OutputPrice1M
		if pr.InputPrice1M != nil && pr.OutputPrice1M != nil {
			b := scoring.BlendedPrice(*pr.InputPrice1M, *pr.OutputPrice1M)
			p.BlendedPrice1M = &b
		}
	}

	scores, err := a.store.ListModelQualityScores(ctx, m.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "leaderboard: quality history %s", slug)
	}
	for _, q := range scores {
		if q.Domain != HistoryDomain || q.SnapshotDate < since {
			continue
		}
		p := point(q.SnapshotDate)
		if p.QualityScore == nil {
			s := q.Score
			p.QualityScore = &s
		}
	}

	metrics, err := a.store.ListDerivedMetrics(ctx, HistoryDomain)
	if err != nil {
		return nil, eris.Wrapf(err, "leaderboard: metric history %s", slug)
	}
	for _, dm := range metrics {
		if dm.ModelID != m.ID || dm.SnapshotDate < since {
			continue
		}
		vs := dm.ValueScore
		point(dm.SnapshotDate).ValueScore = &vs
	}

	out := make([]Point, 0, len(byDate))
	for _, p := range byDate {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate < out[j].SnapshotDate })
	return out, nil
}
