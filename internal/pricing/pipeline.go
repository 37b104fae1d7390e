package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/recompute"
	"github.com/sells-group/valueboard/internal/resilience"
	"github.com/sells-group/valueboard/internal/resolve"
	"github.com/sells-group/valueboard/internal/store"
)

// DefaultFetchTimeout bounds each source fetch.
const DefaultFetchTimeout = 60 * time.Second

// Store is the persistence the pipeline needs.
type Store interface {
	store.CatalogStore
	store.PriceStore
	store.SnapshotStore
}

// Pipeline refreshes current API prices for the active catalog from a
// primary and a fallback source. Primary quotes override fallback quotes
// for the same model.
type Pipeline struct {
	store        Store
	primary      Source
	fallback     Source
	publisher    recompute.Publisher
	breakers     map[string]*resilience.Breaker
	fetchTimeout time.Duration
	log          *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPublisher publishes a price event after each written row.
func WithPublisher(p recompute.Publisher) PipelineOption {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithBreakers guards each source with a circuit breaker keyed by source name.
func WithBreakers(b map[string]*resilience.Breaker) PipelineOption {
	return func(pl *Pipeline) { pl.breakers = b }
}

// WithFetchTimeout sets the per-source fetch timeout.
func WithFetchTimeout(d time.Duration) PipelineOption {
	return func(pl *Pipeline) {
		if d > 0 {
			pl.fetchTimeout = d
		}
	}
}

// NewPipeline creates a Pipeline. Either source may be nil.
func NewPipeline(st Store, primary, fallback Source, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:        st,
		primary:      primary,
		fallback:     fallback,
		fetchTimeout: DefaultFetchTimeout,
		log:          zap.L().With(zap.String("component", "pricing.pipeline")),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type sourceResult struct {
	matched []resolve.PriceMatch
	missing []string
	err     error
}

// Run fetches both sources, writes one current price per matched model and
// reports coverage. Source failures are recorded in the result, never
// returned; an error means the store failed.
func (p *Pipeline) Run(ctx context.Context, snapshotAt time.Time) (*model.PipelineRunResult, error) {
	snapshotAt = snapshotAt.UTC()
	snapshotDate := snapshotAt.Format(model.DateLayout)

	models, err := p.store.ListModels(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: load models")
	}
	idx := resolve.BuildIndex(models)

	var primaryRes, fallbackRes sourceResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		primaryRes = p.fetchAndMatch(gctx, p.primary, idx, snapshotAt)
		return nil
	})
	g.Go(func() error {
		fallbackRes = p.fetchAndMatch(gctx, p.fallback, idx, snapshotAt)
		return nil
	})
	_ = g.Wait()

	var errs []string
	if primaryRes.err != nil {
		errs = append(errs, p.primary.Name()+":"+primaryRes.err.Error())
	}
	if fallbackRes.err != nil {
		errs = append(errs, p.fallback.Name()+":"+fallbackRes.err.Error())
	}
	unmatched := append(append([]string{}, primaryRes.missing...), fallbackRes.missing...)

	preferred := make(map[string]resolve.PriceMatch)
	var order []string
	for _, set := range [][]resolve.PriceMatch{fallbackRes.matched, primaryRes.matched} {
		for _, m := range set {
			if _, ok := preferred[m.Model.ID]; !ok {
				order = append(order, m.Model.ID)
			}
			preferred[m.Model.ID] = m
		}
	}

	written := 0
	for _, id := range order {
		m := preferred[id]
		rec, err := p.write(ctx, m, snapshotDate)
		if err != nil {
			return nil, err
		}
		written++
		p.publish(ctx, rec)
	}

	missing, err := p.coverage(ctx, models)
	if err != nil {
		return nil, err
	}

	res := &model.PipelineRunResult{
		Status:         runStatus(len(errs), written, len(missing)),
		RecordsWritten: written,
		ModelsMatched:  len(order),
		ModelsMissing:  missing,
		Errors:         uniq(append(errs, unmatchedErrors(unmatched)...)),
	}
	p.log.Info("pricing run finished",
		zap.String("status", string(res.Status)),
		zap.Int("written", res.RecordsWritten),
		zap.Int("missing", len(res.ModelsMissing)),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// RunAndRecord runs the pipeline and logs the run as a pricing DataSnapshot.
func (p *Pipeline) RunAndRecord(ctx context.Context, snapshotAt time.Time) (*model.PipelineRunResult, error) {
	snap, err := p.store.CreateSnapshot(ctx, model.SourcePricing, snapshotAt.UTC().Format(model.DateLayout))
	if err != nil {
		return nil, eris.Wrap(err, "pricing: create snapshot")
	}

	res, runErr := p.Run(ctx, snapshotAt)
	if runErr != nil {
		if err := p.store.CompleteSnapshot(ctx, snap.ID, model.RunStatusFailed, 0, runErr.Error()); err != nil {
			p.log.Warn("complete snapshot failed", zap.String("snapshot_id", snap.ID), zap.Error(err))
		}
		return nil, runErr
	}

	msgs := append([]string{}, res.Errors...)
	for i, m := range res.ModelsMissing {
		if i == model.MaxReportedIDs {
			break
		}
		msgs = append(msgs, "missing:"+m)
	}
	if err := p.store.CompleteSnapshot(ctx, snap.ID, res.Status, res.RecordsWritten, strings.Join(msgs, "; ")); err != nil {
		return res, eris.Wrap(err, "pricing: complete snapshot")
	}
	return res, nil
}

func (p *Pipeline) fetchAndMatch(ctx context.Context, src Source, idx resolve.Index, snapshotAt time.Time) sourceResult {
	if src == nil {
		return sourceResult{}
	}
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	fetch := func(ctx context.Context) ([]model.RawPrice, error) { return src.Fetch(ctx, snapshotAt) }
	var rows []model.RawPrice
	var err error
	if b, ok := p.breakers[src.Name()]; ok && b != nil {
		rows, err = resilience.Call(ctx, b, fetch)
	} else {
		rows, err = fetch(ctx)
	}
	if err != nil {
		p.log.Warn("price source failed",
			zap.String("source", src.Name()),
			zap.String("class", resilience.Classify(err)),
			zap.Error(err),
		)
		return sourceResult{err: err}
	}

	matched, missing := resolve.MatchPricing(idx, rows)
	p.log.Debug("price source matched",
		zap.String("source", src.Name()),
		zap.Int("rows", len(rows)),
		zap.Int("matched", len(matched)),
		zap.Int("unmatched", len(missing)),
	)
	return sourceResult{matched: matched, missing: missing}
}

func (p *Pipeline) write(ctx context.Context, m resolve.PriceMatch, snapshotDate string) (*model.PriceRecord, error) {
	rec, err := model.NewPriceRecord(m.Model.ID, m.Model.Slug, model.PricingTypeAPI, snapshotDate)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: build record")
	}
	rec.InputPrice1M = m.Row.InputPrice1M
	rec.OutputPrice1M = m.Row.OutputPrice1M
	rec.CachedInput1M = m.Row.CachedInput1M
	rec.BatchInput1M = m.Row.BatchInput1M
	rec.BatchOutput1M = m.Row.BatchOutput1M
	rec.ImagePrice = m.Row.ImagePrice
	rec.SourceURL = m.Row.SourceURL
	rec.SourceName = m.Row.SourceName
	rec.SourceConfidence = m.Row.Confidence
	if rec.SourceConfidence == "" {
		rec.SourceConfidence = model.ConfidenceMedium
	}

	if err := p.store.WriteCurrentPrice(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "pricing: write price for %s", m.Model.Slug)
	}
	return rec, nil
}

func (p *Pipeline) publish(ctx context.Context, rec *model.PriceRecord) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, recompute.PriceEvent(rec)); err != nil {
		p.log.Warn("publish price event failed", zap.String("model_id", rec.ModelID), zap.Error(err))
	}
}

// coverage lists active models without a current API price by slug, plus
// vendor/slug for those whose vendor is expected to be priced directly.
func (p *Pipeline) coverage(ctx context.Context, models []model.CatalogEntry) ([]string, error) {
	current, err := p.store.ListCurrentPrices(ctx, model.PricingTypeAPI)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: load current prices")
	}
	covered := make(map[string]bool, len(current))
	for _, c := range current {
		covered[c.ModelID] = true
	}

	var missing, likely []string
	for _, m := range models {
		if covered[m.ID] {
			continue
		}
		missing = append(missing, m.Slug)
		if ProviderFromVendor(m.VendorSlug) != ProviderOpenRouter {
			likely = append(likely, m.VendorSlug+"/"+m.Slug)
		}
	}
	return uniq(append(missing, likely...)), nil
}

func runStatus(errCount, written, missing int) model.RunStatus {
	switch {
	case errCount > 0 && written == 0:
		return model.RunStatusFailed
	case errCount > 0, missing > 0:
		return model.RunStatusPartial
	default:
		return model.RunStatusCompleted
	}
}

func unmatchedErrors(ids []string) []string {
	if len(ids) > model.MaxReportedIDs {
		ids = ids[:model.MaxReportedIDs]
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "unmatched:" + id
	}
	return out
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
