// Package recompute keeps derived metrics and per-domain value ranks in step
// with newly written quality scores and prices.
//
// Every triggering write costs one read-and-rewrite of its domain, which is
// fine at catalog scale (tens to low hundreds of models per domain) and is
// the ceiling to watch if domains grow. Concurrent sweeps for the same
// domain are not serialized; the next sweep repairs any interleaving.
package recompute

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/scoring"
	"github.com/sells-group/valueboard/internal/store"
)

// Store is the persistence the coordinator reads and rewrites.
type Store interface {
	store.QualityStore
	store.PriceStore
	store.MetricStore
}

// Invalidator is told when a domain's leaderboard may have changed.
type Invalidator interface {
	Invalidate(ctx context.Context, domain model.Domain) error
}

// Coordinator recomputes derived metrics on quality and price writes.
type Coordinator struct {
	store       Store
	invalidator Invalidator
	now         func() time.Time
	log         *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInvalidator registers a hook run after every rerank and after any
// write that changes a leaderboard without reranking it.
func WithInvalidator(inv Invalidator) Option {
	return func(c *Coordinator) { c.invalidator = inv }
}

// WithClock overrides the clock used for metric snapshot dates.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator over st.
func NewCoordinator(st Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: st,
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "recompute")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnQualityScoreWritten recomputes the metric for q's model and domain.
// A model without a current API price has no value score, so nothing
// happens in that case.
func (c *Coordinator) OnQualityScoreWritten(ctx context.Context, q *model.QualityScore) error {
	if q == nil {
		return eris.New("recompute: nil quality score")
	}
	d, err := model.ResolveDomain(string(q.Domain))
	if err != nil {
		return eris.Wrap(err, "recompute: quality event")
	}
	price, err := c.store.GetCurrentPrice(ctx, q.ModelID, model.PricingTypeAPI)
	if err != nil {
		return eris.Wrapf(err, "recompute: current price for %s", q.ModelID)
	}
	if price == nil {
		c.log.Debug("no current price, skipping recompute",
			zap.String("model_id", q.ModelID),
			zap.String("domain", string(d)),
		)
		// The unpriced row still shows on the board.
		c.invalidate(ctx, d)
		return nil
	}

	qq := *q
	qq.Domain = d
	return c.recompute(ctx, d, q.ModelID, &qq, price)
}

// OnPriceWritten repeats the domain sweep for every domain in which the
// price's model has a quality score. Every other domain lists the model's
// price too, so those are invalidated without a sweep. Non-current and
// non-API prices are ignored.
func (c *Coordinator) OnPriceWritten(ctx context.Context, p *model.PriceRecord) error {
	if p == nil {
		return eris.New("recompute: nil price record")
	}
	if !p.IsCurrent || p.PricingType != model.PricingTypeAPI {
		return nil
	}
	scores, err := c.store.ListModelQualityScores(ctx, p.ModelID)
	if err != nil {
		return eris.Wrapf(err, "recompute: quality scores for %s", p.ModelID)
	}
	seen := make(map[model.Domain]bool)
	for _, q := range scores {
		d, err := model.ResolveDomain(string(q.Domain))
		if err != nil || seen[d] {
			continue
		}
		seen[d] = true
		if err := c.recompute(ctx, d, p.ModelID, nil, p); err != nil {
			return err
		}
	}
	for _, d := range model.Domains {
		if !seen[d] {
			c.invalidate(ctx, d)
		}
	}
	return nil
}

// RecomputeModel runs the domain sweep for one model and persists its metric.
func (c *Coordinator) RecomputeModel(ctx context.Context, modelID string, domain model.Domain) error {
	return c.recompute(ctx, domain, modelID, nil, nil)
}

// RecomputeDomain persists a fresh metric for every priced model in the
// domain and reranks it. It returns the number of metrics written.
func (c *Coordinator) RecomputeDomain(ctx context.Context, domain model.Domain) (int, error) {
	scored, err := c.sweep(ctx, domain, nil, nil)
	if err != nil {
		return 0, err
	}
	for _, s := range scored {
		if err := c.persist(ctx, s); err != nil {
			return 0, err
		}
	}
	if err := c.RerankDomain(ctx, domain); err != nil {
		return 0, err
	}
	return len(scored), nil
}

// RerankDomain rewrites value_rank for every metric in the domain, ordered
// by value score descending. Equal scores keep their stored order.
func (c *Coordinator) RerankDomain(ctx context.Context, domain model.Domain) error {
	metrics, err := c.store.ListDerivedMetrics(ctx, domain)
	if err != nil {
		return eris.Wrapf(err, "recompute: list metrics for %s", domain)
	}
	scores := make([]float64, len(metrics))
	for i, m := range metrics {
		scores[i] = m.ValueScore
	}
	ranks := make(map[string]int, len(metrics))
	for rank, i := range scoring.RankByValue(scores) {
		ranks[metrics[i].ID] = rank + 1
	}
	if err := c.store.UpdateValueRanks(ctx, ranks); err != nil {
		return eris.Wrapf(err, "recompute: update ranks for %s", domain)
	}

	c.invalidate(ctx, domain)
	c.log.Debug("domain reranked", zap.String("domain", string(domain)), zap.Int("metrics", len(metrics)))
	return nil
}

func (c *Coordinator) invalidate(ctx context.Context, domain model.Domain) {
	if c.invalidator == nil {
		return
	}
	if err := c.invalidator.Invalidate(ctx, domain); err != nil {
		c.log.Warn("invalidate failed", zap.String("domain", string(domain)), zap.Error(err))
	}
}

func (c *Coordinator) recompute(ctx context.Context, domain model.Domain, modelID string, q *model.QualityScore, p *model.PriceRecord) error {
	scored, err := c.sweep(ctx, domain, q, p)
	if err != nil {
		return err
	}
	for _, s := range scored {
		if s.ModelID != modelID {
			continue
		}
		if err := c.persist(ctx, s); err != nil {
			return err
		}
		return c.RerankDomain(ctx, domain)
	}
	c.log.Debug("model not in comparison set",
		zap.String("model_id", modelID),
		zap.String("domain", string(domain)),
	)
	c.invalidate(ctx, domain)
	return nil
}

// sweep pairs the latest quality score of every model in the domain with
// that model's own current API price and scores the whole set. q and p, when
// set, replace the stored values for their model so an event is honored even
// if the store read lags the write.
func (c *Coordinator) sweep(ctx context.Context, domain model.Domain, q *model.QualityScore, p *model.PriceRecord) ([]scoring.Scored, error) {
	scores, err := c.store.ListQualityScores(ctx, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "recompute: list quality scores for %s", domain)
	}
	prices, err := c.store.ListCurrentPrices(ctx, model.PricingTypeAPI)
	if err != nil {
		return nil, eris.Wrap(err, "recompute: list current prices")
	}

	priceByModel := make(map[string]model.PriceRecord, len(prices))
	for _, pr := range prices {
		priceByModel[pr.ModelID] = pr
	}
	if p != nil {
		priceByModel[p.ModelID] = *p
	}

	latest := latestQuality(scores)
	if q != nil {
		if _, ok := latest.byModel[q.ModelID]; !ok {
			latest.order = append(latest.order, q.ModelID)
		}
		latest.byModel[q.ModelID] = *q
	}

	tuples := make([]scoring.Tuple, 0, len(latest.order))
	for _, id := range latest.order {
		pr, ok := priceByModel[id]
		if !ok {
			continue
		}
		qs := latest.byModel[id]
		tuples = append(tuples, scoring.Tuple{
			ModelID:      id,
			ModelSlug:    qs.ModelSlug,
			Domain:       domain,
			QualityScore: qs.Score,
			InputPrice:   pr.Input(),
			OutputPrice:  pr.Output(),
		})
	}
	return scoring.ComputeValueScores(tuples), nil
}

func (c *Coordinator) persist(ctx context.Context, s scoring.Scored) error {
	m, err := model.NewDerivedMetric(s.ModelID, s.ModelSlug, s.Domain, s.QualityScore,
		s.BlendedPrice, s.QualityPerDollar, s.ValueScore, c.now().UTC().Format(model.DateLayout))
	if err != nil {
		return eris.Wrap(err, "recompute: build metric")
	}
	m.ValueRank = s.ValueRank
	return eris.Wrapf(c.store.UpsertDerivedMetric(ctx, m), "recompute: upsert metric %s", m.ID)
}

type qualitySet struct {
	order   []string
	byModel map[string]model.QualityScore
}

// latestQuality keeps each model's most recent score, first seen wins on
// equal dates.
func latestQuality(scores []model.QualityScore) qualitySet {
	set := qualitySet{byModel: make(map[string]model.QualityScore, len(scores))}
	for _, q := range scores {
		cur, ok := set.byModel[q.ModelID]
		if !ok {
			set.order = append(set.order, q.ModelID)
			set.byModel[q.ModelID] = q
			continue
		}
		if q.SnapshotDate > cur.SnapshotDate {
			set.byModel[q.ModelID] = q
		}
	}
	return set
}
