package arena

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/recompute"
	"github.com/sells-group/valueboard/internal/resolve"
	"github.com/sells-group/valueboard/internal/store"
)

// DefaultConcurrency is the number of domains fetched at once.
const DefaultConcurrency = 4

// Store is the persistence the ingestor needs.
type Store interface {
	store.CatalogStore
	store.QualityStore
	store.SnapshotStore
}

// Ingestor writes one quality score per matched leaderboard row per domain.
type Ingestor struct {
	store       Store
	source      Source
	publisher   recompute.Publisher
	domains     []model.Domain
	concurrency int
	log         *zap.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithPublisher publishes a quality event after each written score.
func WithPublisher(p recompute.Publisher) Option {
	return func(in *Ingestor) { in.publisher = p }
}

// WithDomains restricts ingest to the given domains.
func WithDomains(ds ...model.Domain) Option {
	return func(in *Ingestor) {
		if len(ds) > 0 {
			in.domains = ds
		}
	}
}

// WithConcurrency sets how many domains are fetched at once.
func WithConcurrency(n int) Option {
	return func(in *Ingestor) {
		if n > 0 {
			in.concurrency = n
		}
	}
}

// NewIngestor creates an Ingestor covering every domain by default.
func NewIngestor(st Store, src Source, opts ...Option) *Ingestor {
	in := &Ingestor{
		store:       st,
		source:      src,
		domains:     model.Domains,
		concurrency: DefaultConcurrency,
		log:         zap.L().With(zap.String("component", "arena.ingest")),
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

type domainResult struct {
	written   int
	matched   int
	unmatched []string
}

// Run ingests every domain for the day of snapshotAt. A failing domain is
// recorded as an error and the run reported partial; the other domains
// still complete. Only catalog or store setup failures are returned.
func (in *Ingestor) Run(ctx context.Context, snapshotAt time.Time) (*model.PipelineRunResult, error) {
	catalog, err := in.store.ListModels(ctx, false)
	if err != nil {
		return nil, eris.Wrap(err, "arena: load catalog")
	}
	bySlug := make(map[string]model.CatalogEntry, len(catalog))
	for _, m := range catalog {
		bySlug[m.Slug] = m
	}

	var (
		mu      sync.Mutex
		results = make(map[model.Domain]domainResult, len(in.domains))
		errs    []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for _, d := range in.domains {
		g.Go(func() error {
			res, err := in.ingestDomain(gctx, d, catalog, bySlug, snapshotAt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				in.log.Warn("domain ingest failed", zap.String("domain", string(d)), zap.Error(err))
				errs = append(errs, string(d)+":"+err.Error())
				return nil
			}
			results[d] = res
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(errs)

	out := &model.PipelineRunResult{Status: model.RunStatusCompleted, Errors: errs}
	seen := make(map[string]bool)
	for _, d := range in.domains {
		res := results[d]
		out.RecordsWritten += res.written
		out.ModelsMatched += res.matched
		for _, name := range res.unmatched {
			if !seen[name] && len(out.ModelsMissing) < model.MaxReportedIDs {
				seen[name] = true
				out.ModelsMissing = append(out.ModelsMissing, name)
			}
		}
	}
	switch {
	case len(errs) == len(in.domains) && len(errs) > 0:
		out.Status = model.RunStatusFailed
	case len(errs) > 0:
		out.Status = model.RunStatusPartial
	}

	in.log.Info("arena ingest complete",
		zap.String("status", string(out.Status)),
		zap.Int("records", out.RecordsWritten),
		zap.Int("failed_domains", len(errs)),
	)
	return out, nil
}

func (in *Ingestor) ingestDomain(ctx context.Context, d model.Domain, catalog []model.CatalogEntry, bySlug map[string]model.CatalogEntry, snapshotAt time.Time) (domainResult, error) {
	var res domainResult
	rows, err := in.source.Fetch(ctx, d)
	if err != nil {
		return res, err
	}

	seen := make(map[string]bool, len(rows))
	for _, raw := range rows {
		slug, ok := resolve.MatchArenaName(raw.ModelName, catalog)
		if !ok {
			if name := strings.TrimSpace(raw.ModelName); name != "" {
				res.unmatched = append(res.unmatched, name)
			}
			continue
		}
		// First row for a model wins; leaderboards list the best variant first.
		if seen[slug] {
			continue
		}
		seen[slug] = true
		m := bySlug[slug]

		q, err := toQualityScore(m, d, raw, snapshotAt)
		if err != nil {
			in.log.Debug("skipping invalid row", zap.String("model", raw.ModelName), zap.Error(err))
			continue
		}
		res.matched++
		if err := in.store.UpsertQualityScore(ctx, q); err != nil {
			return res, eris.Wrapf(err, "arena: write %s", q.ID)
		}
		res.written++

		if in.publisher != nil {
			if err := in.publisher.Publish(ctx, recompute.QualityEvent(q)); err != nil {
				in.log.Warn("publish quality event failed", zap.String("model_id", q.ModelID), zap.Error(err))
			}
		}
	}
	return res, nil
}

func toQualityScore(m model.CatalogEntry, d model.Domain, raw model.RawBenchmarkRow, snapshotAt time.Time) (*model.QualityScore, error) {
	if math.IsNaN(raw.EloScore) || raw.EloScore <= 0 {
		return nil, eris.Errorf("arena: non-positive score %v", raw.EloScore)
	}
	q, err := model.NewQualityScore(m.ID, m.Slug, d, raw.EloScore, snapshotAt)
	if err != nil {
		return nil, err
	}
	q.CILower, q.CIUpper = raw.EloCILower, raw.EloCIUpper
	q.Votes, q.Rank = raw.Votes, raw.Rank
	return q, nil
}

// RunAndRecord runs the ingest and records it as an arena DataSnapshot.
func (in *Ingestor) RunAndRecord(ctx context.Context, snapshotAt time.Time) (*model.PipelineRunResult, error) {
	snap, err := in.store.CreateSnapshot(ctx, model.SourceArena, snapshotAt.UTC().Format(model.DateLayout))
	if err != nil {
		return nil, eris.Wrap(err, "arena: create snapshot")
	}

	res, runErr := in.Run(ctx, snapshotAt)
	if runErr != nil {
		if err := in.store.CompleteSnapshot(ctx, snap.ID, model.RunStatusFailed, 0, runErr.Error()); err != nil {
			in.log.Warn("complete snapshot failed", zap.String("snapshot_id", snap.ID), zap.Error(err))
		}
		return nil, runErr
	}
	if err := in.store.CompleteSnapshot(ctx, snap.ID, res.Status, res.RecordsWritten, strings.Join(res.Errors, "; ")); err != nil {
		return res, eris.Wrap(err, "arena: complete snapshot")
	}
	return res, nil
}
