package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/db"
	"github.com/sells-group/valueboard/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(10), int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS models (
	id             TEXT PRIMARY KEY,
	slug           TEXT NOT NULL UNIQUE,
	canonical_name TEXT NOT NULL DEFAULT '',
	vendor_slug    TEXT NOT NULL DEFAULT '',
	vendor_name    TEXT NOT NULL DEFAULT '',
	family         TEXT NOT NULL DEFAULT '',
	aliases        TEXT[] NOT NULL DEFAULT '{}',
	modality       TEXT NOT NULL DEFAULT 'text',
	context_window INTEGER,
	is_open_source BOOLEAN NOT NULL DEFAULT false,
	active         BOOLEAN NOT NULL DEFAULT true,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quality_scores (
	id            TEXT PRIMARY KEY,
	model_id      TEXT NOT NULL,
	model_slug    TEXT NOT NULL,
	domain        TEXT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	ci_lower      DOUBLE PRECISION,
	ci_upper      DOUBLE PRECISION,
	rank          INTEGER,
	votes         INTEGER,
	snapshot_date TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quality_scores_domain ON quality_scores(domain, snapshot_date DESC);
CREATE INDEX IF NOT EXISTS idx_quality_scores_model ON quality_scores(model_id);

CREATE TABLE IF NOT EXISTS price_records (
	id                TEXT PRIMARY KEY,
	model_id          TEXT NOT NULL,
	model_slug        TEXT NOT NULL,
	pricing_type      TEXT NOT NULL,
	input_price_1m    DOUBLE PRECISION,
	output_price_1m   DOUBLE PRECISION,
	cached_input_1m   DOUBLE PRECISION,
	batch_input_1m    DOUBLE PRECISION,
	batch_output_1m   DOUBLE PRECISION,
	image_price       DOUBLE PRECISION,
	source_url        TEXT NOT NULL DEFAULT '',
	source_name       TEXT NOT NULL DEFAULT '',
	source_confidence TEXT NOT NULL DEFAULT 'medium',
	fetched_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	snapshot_date     TEXT NOT NULL,
	is_current        BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_price_records_current ON price_records(model_id, pricing_type) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_price_records_history ON price_records(model_id, pricing_type, snapshot_date);

CREATE TABLE IF NOT EXISTS derived_metrics (
	id                 TEXT PRIMARY KEY,
	model_id           TEXT NOT NULL,
	model_slug         TEXT NOT NULL,
	domain             TEXT NOT NULL,
	quality_score      DOUBLE PRECISION NOT NULL,
	blended_price_1m   DOUBLE PRECISION NOT NULL,
	quality_per_dollar DOUBLE PRECISION NOT NULL,
	dollar_per_quality DOUBLE PRECISION,
	value_score        DOUBLE PRECISION NOT NULL,
	value_rank         INTEGER NOT NULL DEFAULT 0,
	snapshot_date      TEXT NOT NULL,
	computed_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_derived_metrics_domain ON derived_metrics(domain);

CREATE TABLE IF NOT EXISTS data_snapshots (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	snapshot_date TEXT NOT NULL,
	records_count INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'running',
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_data_snapshots_source ON data_snapshots(source, status, completed_at DESC);
`

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Catalog ---

var modelColumns = []string{
	"id", "slug", "canonical_name", "vendor_slug", "vendor_name", "family",
	"aliases", "modality", "context_window", "is_open_source", "active", "updated_at",
}

const modelSelect = `SELECT id, slug, canonical_name, vendor_slug, vendor_name, family, aliases, modality, context_window, is_open_source, active FROM models`

func (s *PostgresStore) UpsertModels(ctx context.Context, models []model.CatalogEntry) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(models))
	for _, m := range models {
		aliases := m.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		modality := m.Modality
		if modality == "" {
			modality = model.ModalityText
		}
		rows = append(rows, []any{
			m.ID, m.Slug, m.CanonicalName, m.VendorSlug, m.VendorName, m.Family,
			aliases, string(modality), m.ContextWindow, m.IsOpenSource, m.Active, now,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "models",
		Columns:      modelColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert models")
	}
	return n, nil
}

func scanPgModel(row pgx.Row) (*model.CatalogEntry, error) {
	var m model.CatalogEntry
	var modality string
	if err := row.Scan(&m.ID, &m.Slug, &m.CanonicalName, &m.VendorSlug, &m.VendorName, &m.Family,
		&m.Aliases, &modality, &m.ContextWindow, &m.IsOpenSource, &m.Active); err != nil {
		return nil, err
	}
	m.Modality = model.Modality(modality)
	return &m, nil
}

func (s *PostgresStore) ListModels(ctx context.Context, activeOnly bool) ([]model.CatalogEntry, error) {
	q := modelSelect
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY slug`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list models")
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		m, err := scanPgModel(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan model")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list models rows")
}

func (s *PostgresStore) GetModelBySlug(ctx context.Context, slug string) (*model.CatalogEntry, error) {
	m, err := scanPgModel(s.pool.QueryRow(ctx, modelSelect+` WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get model %s", slug)
	}
	return m, nil
}

// --- Quality scores ---

const qualitySelect = `SELECT id, model_id, model_slug, domain, score, ci_lower, ci_upper, rank, votes, snapshot_date, created_at FROM quality_scores`

func (s *PostgresStore) UpsertQualityScore(ctx context.Context, q *model.QualityScore) error {
	if err := q.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quality_scores (id, model_id, model_slug, domain, score, ci_lower, ci_upper, rank, votes, snapshot_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET score = EXCLUDED.score, ci_lower = EXCLUDED.ci_lower, ci_upper = EXCLUDED.ci_upper,
			rank = EXCLUDED.rank, votes = EXCLUDED.votes, model_slug = EXCLUDED.model_slug`,
		q.ID, q.ModelID, q.ModelSlug, string(q.Domain), q.Score, q.CILower, q.CIUpper, q.Rank, q.Votes, q.SnapshotDate, q.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert quality score %s", q.ID)
}

func (s *PostgresStore) queryQualityScores(ctx context.Context, q string, args ...any) ([]model.QualityScore, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quality scores")
	}
	defer rows.Close()

	var out []model.QualityScore
	for rows.Next() {
		var r model.QualityScore
		var domain string
		if err := rows.Scan(&r.ID, &r.ModelID, &r.ModelSlug, &domain, &r.Score, &r.CILower, &r.CIUpper,
			&r.Rank, &r.Votes, &r.SnapshotDate, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quality score")
		}
		r.Domain = model.Domain(domain)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list quality scores rows")
	}
	return validQualityScores(out), nil
}

func (s *PostgresStore) ListQualityScores(ctx context.Context, domain model.Domain) ([]model.QualityScore, error) {
	return s.queryQualityScores(ctx,
		qualitySelect+` WHERE domain = ANY($1) ORDER BY snapshot_date DESC, model_id`,
		model.DomainQueryKeys(domain),
	)
}

func (s *PostgresStore) ListModelQualityScores(ctx context.Context, modelID string) ([]model.QualityScore, error) {
	return s.queryQualityScores(ctx,
		qualitySelect+` WHERE model_id = $1 ORDER BY snapshot_date DESC, domain`,
		modelID,
	)
}

// --- Prices ---

const priceSelect = `SELECT id, model_id, model_slug, pricing_type, input_price_1m, output_price_1m, cached_input_1m,
	batch_input_1m, batch_output_1m, image_price, source_url, source_name, source_confidence, fetched_at,
	snapshot_date, is_current, created_at FROM price_records`

func scanPgPrice(row pgx.Row) (*model.PriceRecord, error) {
	var p model.PriceRecord
	var pt, conf string
	if err := row.Scan(&p.ID, &p.ModelID, &p.ModelSlug, &pt, &p.InputPrice1M, &p.OutputPrice1M, &p.CachedInput1M,
		&p.BatchInput1M, &p.BatchOutput1M, &p.ImagePrice, &p.SourceURL, &p.SourceName, &conf, &p.FetchedAt,
		&p.SnapshotDate, &p.IsCurrent, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.PricingType = model.PricingType(pt)
	p.SourceConfidence = model.Confidence(conf)
	return &p, nil
}

func (s *PostgresStore) WriteCurrentPrice(ctx context.Context, p *model.PriceRecord) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.IsCurrent = true
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE price_records SET is_current = false WHERE model_id = $1 AND pricing_type = $2 AND is_current AND id <> $3`,
			p.ModelID, string(p.PricingType), p.ID,
		); err != nil {
			return eris.Wrap(err, "flip current")
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO price_records (id, model_id, model_slug, pricing_type, input_price_1m, output_price_1m, cached_input_1m,
				batch_input_1m, batch_output_1m, image_price, source_url, source_name, source_confidence, fetched_at,
				snapshot_date, is_current, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, true, $16)
			ON CONFLICT (id) DO UPDATE SET input_price_1m = EXCLUDED.input_price_1m, output_price_1m = EXCLUDED.output_price_1m,
				cached_input_1m = EXCLUDED.cached_input_1m, batch_input_1m = EXCLUDED.batch_input_1m,
				batch_output_1m = EXCLUDED.batch_output_1m, image_price = EXCLUDED.image_price,
				source_url = EXCLUDED.source_url, source_name = EXCLUDED.source_name,
				source_confidence = EXCLUDED.source_confidence, fetched_at = EXCLUDED.fetched_at, is_current = true`,
			p.ID, p.ModelID, p.ModelSlug, string(p.PricingType), p.InputPrice1M, p.OutputPrice1M, p.CachedInput1M,
			p.BatchInput1M, p.BatchOutput1M, p.ImagePrice, p.SourceURL, p.SourceName, string(p.SourceConfidence),
			p.FetchedAt, p.SnapshotDate, p.CreatedAt,
		)
		return eris.Wrap(err, "insert current")
	})
	return eris.Wrapf(err, "postgres: write current price %s", p.ID)
}

func (s *PostgresStore) GetCurrentPrice(ctx context.Context, modelID string, pt model.PricingType) (*model.PriceRecord, error) {
	p, err := scanPgPrice(s.pool.QueryRow(ctx,
		priceSelect+` WHERE model_id = $1 AND pricing_type = $2 AND is_current ORDER BY snapshot_date DESC, fetched_at DESC LIMIT 1`,
		modelID, string(pt),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get current price %s", modelID)
	}
	if err := p.Validate(); err != nil {
		zap.L().Warn("store: ignoring invalid current price", zap.String("id", p.ID), zap.Error(err))
		return nil, nil
	}
	return p, nil
}

func (s *PostgresStore) queryPrices(ctx context.Context, q string, args ...any) ([]model.PriceRecord, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prices")
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		p, err := scanPgPrice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan price")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list prices rows")
	}
	return validPrices(out), nil
}

func (s *PostgresStore) ListCurrentPrices(ctx context.Context, pt model.PricingType) ([]model.PriceRecord, error) {
	rows, err := s.queryPrices(ctx,
		priceSelect+` WHERE pricing_type = $1 AND is_current ORDER BY model_id, snapshot_date DESC`,
		string(pt),
	)
	if err != nil {
		return nil, err
	}
	return latestPerModel(rows), nil
}

func (s *PostgresStore) ListPriceHistory(ctx context.Context, modelID string, pt model.PricingType, since string) ([]model.PriceRecord, error) {
	return s.queryPrices(ctx,
		priceSelect+` WHERE model_id = $1 AND pricing_type = $2 AND snapshot_date >= $3 ORDER BY snapshot_date`,
		modelID, string(pt), since,
	)
}

// --- Derived metrics ---

func (s *PostgresStore) UpsertDerivedMetric(ctx context.Context, m *model.DerivedMetric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO derived_metrics (id, model_id, model_slug, domain, quality_score, blended_price_1m, quality_per_dollar,
			dollar_per_quality, value_score, value_rank, snapshot_date, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET quality_score = EXCLUDED.quality_score, blended_price_1m = EXCLUDED.blended_price_1m,
			quality_per_dollar = EXCLUDED.quality_per_dollar, dollar_per_quality = EXCLUDED.dollar_per_quality,
			value_score = EXCLUDED.value_score, value_rank = EXCLUDED.value_rank,
			snapshot_date = EXCLUDED.snapshot_date, computed_at = EXCLUDED.computed_at`,
		m.ID, m.ModelID, m.ModelSlug, string(m.Domain), m.QualityScore, m.BlendedPrice1M, m.QualityPerDollar,
		m.DollarPerQuality, m.ValueScore, m.ValueRank, m.SnapshotDate, m.ComputedAt,
	)
	return eris.Wrapf(err, "postgres: upsert derived metric %s", m.ID)
}

func (s *PostgresStore) ListDerivedMetrics(ctx context.Context, domain model.Domain) ([]model.DerivedMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, model_id, model_slug, domain, quality_score, blended_price_1m, quality_per_dollar, dollar_per_quality,
			value_score, value_rank, snapshot_date, computed_at
		FROM derived_metrics WHERE domain = ANY($1) ORDER BY id`,
		model.DomainQueryKeys(domain),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list derived metrics")
	}
	defer rows.Close()

	var out []model.DerivedMetric
	for rows.Next() {
		var m model.DerivedMetric
		var d string
		if err := rows.Scan(&m.ID, &m.ModelID, &m.ModelSlug, &d, &m.QualityScore, &m.BlendedPrice1M, &m.QualityPerDollar,
			&m.DollarPerQuality, &m.ValueScore, &m.ValueRank, &m.SnapshotDate, &m.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan derived metric")
		}
		m.Domain = model.Domain(d)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list derived metrics rows")
	}
	return validMetrics(out, domain), nil
}

func (s *PostgresStore) UpdateValueRanks(ctx context.Context, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, id := range sortedIDs(ranks) {
			if _, err := tx.Exec(ctx, `UPDATE derived_metrics SET value_rank = $1 WHERE id = $2`, ranks[id], id); err != nil {
				return eris.Wrapf(err, "rank %s", id)
			}
		}
		return nil
	})
	return eris.Wrap(err, "postgres: update value ranks")
}

// --- Snapshots ---

const snapshotSelect = `SELECT id, source, snapshot_date, records_count, status, error_message, started_at, completed_at FROM data_snapshots`

func (s *PostgresStore) CreateSnapshot(ctx context.Context, source, snapshotDate string) (*model.DataSnapshot, error) {
	snap := &model.DataSnapshot{
		ID:           uuid.New().String(),
		Source:       source,
		SnapshotDate: snapshotDate,
		Status:       model.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO data_snapshots (id, source, snapshot_date, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, snap.Source, snap.SnapshotDate, string(snap.Status), snap.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create snapshot")
	}
	return snap, nil
}

func (s *PostgresStore) CompleteSnapshot(ctx context.Context, id string, status model.RunStatus, records int, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE data_snapshots SET status = $1, records_count = $2, error_message = $3, completed_at = $4 WHERE id = $5`,
		string(status), records, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete snapshot %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: snapshot not found: %s", id)
	}
	return nil
}

func scanPgSnapshot(row pgx.Row) (*model.DataSnapshot, error) {
	var snap model.DataSnapshot
	var status string
	if err := row.Scan(&snap.ID, &snap.Source, &snap.SnapshotDate, &snap.RecordsCount, &status,
		&snap.ErrorMessage, &snap.StartedAt, &snap.CompletedAt); err != nil {
		return nil, err
	}
	snap.Status = model.RunStatus(status)
	return &snap, nil
}

func (s *PostgresStore) LatestCompletedSnapshot(ctx context.Context, source string) (*model.DataSnapshot, error) {
	snap, err := scanPgSnapshot(s.pool.QueryRow(ctx,
		snapshotSelect+` WHERE source = $1 AND status = $2 ORDER BY completed_at DESC LIMIT 1`,
		source, string(model.RunStatusCompleted),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest snapshot %s", source)
	}
	return snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, source string, limit int) ([]model.DataSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, snapshotSelect+` WHERE source = $1 ORDER BY started_at DESC LIMIT $2`, source, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []model.DataSnapshot
	for rows.Next() {
		snap, err := scanPgSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list snapshots rows")
}
