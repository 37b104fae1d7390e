package model

import "time"

// RunStatus is the outcome of a pipeline or ingest run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// MaxReportedIDs bounds the unmatched-id list carried in a run result.
const MaxReportedIDs = 25

// PipelineRunResult reports a pricing pipeline run. Partial is an expected
// outcome; callers branch on Status.
type PipelineRunResult struct {
	Status         RunStatus `json:"status"`
	RecordsWritten int       `json:"records_written"`
	ModelsMatched  int       `json:"models_matched"`
	ModelsMissing  []string  `json:"models_missing"`
	Errors         []string  `json:"errors"`
}

// Snapshot sources.
const (
	SourceArena   = "arena"
	SourcePricing = "pricing"
)

// DataSnapshot records one run of an ingest job; the latest completed one per
// source drives the leaderboard freshness timestamps.
type DataSnapshot struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	SnapshotDate string     `json:"snapshot_date"`
	RecordsCount int        `json:"records_count"`
	Status       RunStatus  `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Freshness carries the last successful update time per source.
type Freshness struct {
	QualityLastUpdated *time.Time `json:"quality_last_updated"`
	PricingLastUpdated *time.Time `json:"pricing_last_updated"`
}
