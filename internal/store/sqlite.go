package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/valueboard/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS models (
	id             TEXT PRIMARY KEY,
	slug           TEXT NOT NULL UNIQUE,
	canonical_name TEXT NOT NULL DEFAULT '',
	vendor_slug    TEXT NOT NULL DEFAULT '',
	vendor_name    TEXT NOT NULL DEFAULT '',
	family         TEXT NOT NULL DEFAULT '',
	aliases        TEXT NOT NULL DEFAULT '[]',
	modality       TEXT NOT NULL DEFAULT 'text',
	context_window INTEGER,
	is_open_source INTEGER NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS quality_scores (
	id            TEXT PRIMARY KEY,
	model_id      TEXT NOT NULL,
	model_slug    TEXT NOT NULL,
	domain        TEXT NOT NULL,
	score         REAL NOT NULL,
	ci_lower      REAL,
	ci_upper      REAL,
	rank          INTEGER,
	votes         INTEGER,
	snapshot_date TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_quality_scores_domain ON quality_scores(domain, snapshot_date);
CREATE INDEX IF NOT EXISTS idx_quality_scores_model ON quality_scores(model_id);

CREATE TABLE IF NOT EXISTS price_records (
	id                TEXT PRIMARY KEY,
	model_id          TEXT NOT NULL,
	model_slug        TEXT NOT NULL,
	pricing_type      TEXT NOT NULL,
	input_price_1m    REAL,
	output_price_1m   REAL,
	cached_input_1m   REAL,
	batch_input_1m    REAL,
	batch_output_1m   REAL,
	image_price       REAL,
	source_url        TEXT NOT NULL DEFAULT '',
	source_name       TEXT NOT NULL DEFAULT '',
	source_confidence TEXT NOT NULL DEFAULT 'medium',
	fetched_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	snapshot_date     TEXT NOT NULL,
	is_current        INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_price_records_current ON price_records(model_id, pricing_type, is_current);

CREATE TABLE IF NOT EXISTS derived_metrics (
	id                 TEXT PRIMARY KEY,
	model_id           TEXT NOT NULL,
	model_slug         TEXT NOT NULL,
	domain             TEXT NOT NULL,
	quality_score      REAL NOT NULL,
	blended_price_1m   REAL NOT NULL,
	quality_per_dollar REAL NOT NULL,
	dollar_per_quality REAL,
	value_score        REAL NOT NULL,
	value_rank         INTEGER NOT NULL DEFAULT 0,
	snapshot_date      TEXT NOT NULL,
	computed_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_derived_metrics_domain ON derived_metrics(domain);

CREATE TABLE IF NOT EXISTS data_snapshots (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	snapshot_date TEXT NOT NULL,
	records_count INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'running',
	error_message TEXT NOT NULL DEFAULT '',
	started_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_data_snapshots_source ON data_snapshots(source, status);
`

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// --- Catalog ---

func (s *SQLiteStore) UpsertModels(ctx context.Context, models []model.CatalogEntry) (int64, error) {
	if len(models) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert models: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, m := range models {
		aliases := m.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		aliasJSON, err := json.Marshal(aliases)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal aliases")
		}
		modality := m.Modality
		if modality == "" {
			modality = model.ModalityText
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO models (id, slug, canonical_name, vendor_slug, vendor_name, family, aliases, modality, context_window, is_open_source, active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET slug = excluded.slug, canonical_name = excluded.canonical_name,
				vendor_slug = excluded.vendor_slug, vendor_name = excluded.vendor_name, family = excluded.family,
				aliases = excluded.aliases, modality = excluded.modality, context_window = excluded.context_window,
				is_open_source = excluded.is_open_source, active = excluded.active, updated_at = excluded.updated_at`,
			m.ID, m.Slug, m.CanonicalName, m.VendorSlug, m.VendorName, m.Family, string(aliasJSON), string(modality),
			m.ContextWindow, m.IsOpenSource, m.Active, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert model %s", m.ID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert models: commit")
	}
	return n, nil
}

const sqliteModelSelect = `SELECT id, slug, canonical_name, vendor_slug, vendor_name, family, aliases, modality, context_window, is_open_source, active FROM models`

func scanSQLiteModel(row scannable) (*model.CatalogEntry, error) {
	var m model.CatalogEntry
	var aliases, modality string
	var cw sql.NullInt64
	if err := row.Scan(&m.ID, &m.Slug, &m.CanonicalName, &m.VendorSlug, &m.VendorName, &m.Family,
		&aliases, &modality, &cw, &m.IsOpenSource, &m.Active); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(aliases), &m.Aliases); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal aliases for %s", m.ID)
	}
	m.Modality = model.Modality(modality)
	m.ContextWindow = nullInt(cw)
	return &m, nil
}

func (s *SQLiteStore) ListModels(ctx context.Context, activeOnly bool) ([]model.CatalogEntry, error) {
	q := sqliteModelSelect
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY slug`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list models")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CatalogEntry
	for rows.Next() {
		m, err := scanSQLiteModel(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan model")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list models rows")
}

func (s *SQLiteStore) GetModelBySlug(ctx context.Context, slug string) (*model.CatalogEntry, error) {
	m, err := scanSQLiteModel(s.db.QueryRowContext(ctx, sqliteModelSelect+` WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get model %s", slug)
	}
	return m, nil
}

// --- Quality scores ---

const sqliteQualitySelect = `SELECT id, model_id, model_slug, domain, score, ci_lower, ci_upper, rank, votes, snapshot_date, created_at FROM quality_scores`

func (s *SQLiteStore) UpsertQualityScore(ctx context.Context, q *model.QualityScore) error {
	if err := q.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quality_scores (id, model_id, model_slug, domain, score, ci_lower, ci_upper, rank, votes, snapshot_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET score = excluded.score, ci_lower = excluded.ci_lower, ci_upper = excluded.ci_upper,
			rank = excluded.rank, votes = excluded.votes, model_slug = excluded.model_slug`,
		q.ID, q.ModelID, q.ModelSlug, string(q.Domain), q.Score, q.CILower, q.CIUpper, q.Rank, q.Votes, q.SnapshotDate, q.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert quality score %s", q.ID)
}

func (s *SQLiteStore) queryQualityScores(ctx context.Context, q string, args ...any) ([]model.QualityScore, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quality scores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.QualityScore
	for rows.Next() {
		var r model.QualityScore
		var domain string
		var lo, hi sql.NullFloat64
		var rank, votes sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ModelID, &r.ModelSlug, &domain, &r.Score, &lo, &hi, &rank, &votes,
			&r.SnapshotDate, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quality score")
		}
		r.Domain = model.Domain(domain)
		r.CILower, r.CIUpper = nullFloat(lo), nullFloat(hi)
		r.Rank, r.Votes = nullInt(rank), nullInt(votes)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list quality scores rows")
	}
	return validQualityScores(out), nil
}

func (s *SQLiteStore) ListQualityScores(ctx context.Context, domain model.Domain) ([]model.QualityScore, error) {
	keys := model.DomainQueryKeys(domain)
	return s.queryQualityScores(ctx,
		sqliteQualitySelect+` WHERE domain IN (`+placeholders(len(keys))+`) ORDER BY snapshot_date DESC, model_id`,
		stringArgs(keys)...,
	)
}

func (s *SQLiteStore) ListModelQualityScores(ctx context.Context, modelID string) ([]model.QualityScore, error) {
	return s.queryQualityScores(ctx,
		sqliteQualitySelect+` WHERE model_id = ? ORDER BY snapshot_date DESC, domain`,
		modelID,
	)
}

// --- Prices ---

const sqlitePriceSelect = `SELECT id, model_id, model_slug, pricing_type, input_price_1m, output_price_1m, cached_input_1m,
	batch_input_1m, batch_output_1m, image_price, source_url, source_name, source_confidence, fetched_at,
	snapshot_date, is_current, created_at FROM price_records`

func scanSQLitePrice(row scannable) (*model.PriceRecord, error) {
	var p model.PriceRecord
	var pt, conf string
	var in, out, cached, bin, bout, img sql.NullFloat64
	if err := row.Scan(&p.ID, &p.ModelID, &p.ModelSlug, &pt, &in, &out, &cached, &bin, &bout, &img,
		&p.SourceURL, &p.SourceName, &conf, &p.FetchedAt, &p.SnapshotDate, &p.IsCurrent, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.PricingType = model.PricingType(pt)
	p.SourceConfidence = model.Confidence(conf)
	p.InputPrice1M, p.OutputPrice1M = nullFloat(in), nullFloat(out)
	p.CachedInput1M, p.BatchInput1M, p.BatchOutput1M = nullFloat(cached), nullFloat(bin), nullFloat(bout)
	p.ImagePrice = nullFloat(img)
	return &p, nil
}

func (s *SQLiteStore) WriteCurrentPrice(ctx context.Context, p *model.PriceRecord) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.IsCurrent = true

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: write current price: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE price_records SET is_current = 0 WHERE model_id = ? AND pricing_type = ? AND is_current = 1 AND id <> ?`,
		p.ModelID, string(p.PricingType), p.ID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: flip current price for %s", p.ModelID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO price_records (id, model_id, model_slug, pricing_type, input_price_1m, output_price_1m, cached_input_1m,
			batch_input_1m, batch_output_1m, image_price, source_url, source_name, source_confidence, fetched_at,
			snapshot_date, is_current, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (id) DO UPDATE SET input_price_1m = excluded.input_price_1m, output_price_1m = excluded.output_price_1m,
			cached_input_1m = excluded.cached_input_1m, batch_input_1m = excluded.batch_input_1m,
			batch_output_1m = excluded.batch_output_1m, image_price = excluded.image_price,
			source_url = excluded.source_url, source_name = excluded.source_name,
			source_confidence = excluded.source_confidence, fetched_at = excluded.fetched_at, is_current = 1`,
		p.ID, p.ModelID, p.ModelSlug, string(p.PricingType), p.InputPrice1M, p.OutputPrice1M, p.CachedInput1M,
		p.BatchInput1M, p.BatchOutput1M, p.ImagePrice, p.SourceURL, p.SourceName, string(p.SourceConfidence),
		p.FetchedAt, p.SnapshotDate, p.CreatedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert current price %s", p.ID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: write current price: commit")
}

func (s *SQLiteStore) GetCurrentPrice(ctx context.Context, modelID string, pt model.PricingType) (*model.PriceRecord, error) {
	p, err := scanSQLitePrice(s.db.QueryRowContext(ctx,
		sqlitePriceSelect+` WHERE model_id = ? AND pricing_type = ? AND is_current = 1 ORDER BY snapshot_date DESC, fetched_at DESC LIMIT 1`,
		modelID, string(pt),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get current price %s", modelID)
	}
	if err := p.Validate(); err != nil {
		zap.L().Warn("store: ignoring invalid current price", zap.String("id", p.ID), zap.Error(err))
		return nil, nil
	}
	return p, nil
}

func (s *SQLiteStore) queryPrices(ctx context.Context, q string, args ...any) ([]model.PriceRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prices")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PriceRecord
	for rows.Next() {
		p, err := scanSQLitePrice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list prices rows")
	}
	return validPrices(out), nil
}

func (s *SQLiteStore) ListCurrentPrices(ctx context.Context, pt model.PricingType) ([]model.PriceRecord, error) {
	rows, err := s.queryPrices(ctx,
		sqlitePriceSelect+` WHERE pricing_type = ? AND is_current = 1 ORDER BY model_id, snapshot_date DESC`,
		string(pt),
	)
	if err != nil {
		return nil, err
	}
	return latestPerModel(rows), nil
}

func (s *SQLiteStore) ListPriceHistory(ctx context.Context, modelID string, pt model.PricingType, since string) ([]model.PriceRecord, error) {
	return s.queryPrices(ctx,
		sqlitePriceSelect+` WHERE model_id = ? AND pricing_type = ? AND snapshot_date >= ? ORDER BY snapshot_date`,
		modelID, string(pt), since,
	)
}

// --- Derived metrics ---

func (s *SQLiteStore) UpsertDerivedMetric(ctx context.Context, m *model.DerivedMetric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO derived_metrics (id, model_id, model_slug, domain, quality_score, blended_price_1m, quality_per_dollar,
			dollar_per_quality, value_score, value_rank, snapshot_date, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET quality_score = excluded.quality_score, blended_price_1m = excluded.blended_price_1m,
			quality_per_dollar = excluded.quality_per_dollar, dollar_per_quality = excluded.dollar_per_quality,
			value_score = excluded.value_score, value_rank = excluded.value_rank,
			snapshot_date = excluded.snapshot_date, computed_at = excluded.computed_at`,
		m.ID, m.ModelID, m.ModelSlug, string(m.Domain), m.QualityScore, m.BlendedPrice1M, m.QualityPerDollar,
		m.DollarPerQuality, m.ValueScore, m.ValueRank, m.SnapshotDate, m.ComputedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert derived metric %s", m.ID)
}

func (s *SQLiteStore) ListDerivedMetrics(ctx context.Context, domain model.Domain) ([]model.DerivedMetric, error) {
	keys := model.DomainQueryKeys(domain)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_id, model_slug, domain, quality_score, blended_price_1m, quality_per_dollar, dollar_per_quality,
			value_score, value_rank, snapshot_date, computed_at
		FROM derived_metrics WHERE domain IN (`+placeholders(len(keys))+`) ORDER BY id`,
		stringArgs(keys)...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list derived metrics")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DerivedMetric
	for rows.Next() {
		var m model.DerivedMetric
		var d string
		var dpq sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.ModelID, &m.ModelSlug, &d, &m.QualityScore, &m.BlendedPrice1M, &m.QualityPerDollar,
			&dpq, &m.ValueScore, &m.ValueRank, &m.SnapshotDate, &m.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan derived metric")
		}
		m.Domain = model.Domain(d)
		m.DollarPerQuality = nullFloat(dpq)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list derived metrics rows")
	}
	return validMetrics(out, domain), nil
}

func (s *SQLiteStore) UpdateValueRanks(ctx context.Context, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: update value ranks: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range sortedIDs(ranks) {
		if _, err := tx.ExecContext(ctx, `UPDATE derived_metrics SET value_rank = ? WHERE id = ?`, ranks[id], id); err != nil {
			return eris.Wrapf(err, "sqlite: update value rank %s", id)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: update value ranks: commit")
}

// --- Snapshots ---

const sqliteSnapshotSelect = `SELECT id, source, snapshot_date, records_count, status, error_message, started_at, completed_at FROM data_snapshots`

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, source, snapshotDate string) (*model.DataSnapshot, error) {
	snap := &model.DataSnapshot{
		ID:           uuid.New().String(),
		Source:       source,
		SnapshotDate: snapshotDate,
		Status:       model.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO data_snapshots (id, source, snapshot_date, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Source, snap.SnapshotDate, string(snap.Status), snap.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create snapshot")
	}
	return snap, nil
}

func (s *SQLiteStore) CompleteSnapshot(ctx context.Context, id string, status model.RunStatus, records int, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE data_snapshots SET status = ?, records_count = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(status), records, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete snapshot %s", id)
	}
	return checkRowsAffected(res, "snapshot", id)
}

func scanSQLiteSnapshot(row scannable) (*model.DataSnapshot, error) {
	var snap model.DataSnapshot
	var status string
	var completed sql.NullTime
	if err := row.Scan(&snap.ID, &snap.Source, &snap.SnapshotDate, &snap.RecordsCount, &status,
		&snap.ErrorMessage, &snap.StartedAt, &completed); err != nil {
		return nil, err
	}
	snap.Status = model.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		snap.CompletedAt = &t
	}
	return &snap, nil
}

func (s *SQLiteStore) LatestCompletedSnapshot(ctx context.Context, source string) (*model.DataSnapshot, error) {
	snap, err := scanSQLiteSnapshot(s.db.QueryRowContext(ctx,
		sqliteSnapshotSelect+` WHERE source = ? AND status = ? ORDER BY completed_at DESC LIMIT 1`,
		source, string(model.RunStatusCompleted),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest snapshot %s", source)
	}
	return snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, source string, limit int) ([]model.DataSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, sqliteSnapshotSelect+` WHERE source = ? ORDER BY started_at DESC LIMIT ?`, source, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DataSnapshot
	for rows.Next() {
		snap, err := scanSQLiteSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list snapshots rows")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
