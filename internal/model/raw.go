package model

import "time"

// RawBenchmarkRow is one leaderboard row as produced by a benchmark scraper.
type RawBenchmarkRow struct {
	ModelName    string   `json:"model_name"`
	Organization string   `json:"organization"`
	EloScore     float64  `json:"elo_score"`
	EloCILower   *float64 `json:"elo_ci_lower,omitempty"`
	EloCIUpper   *float64 `json:"elo_ci_upper,omitempty"`
	Votes        *int     `json:"votes,omitempty"`
	Rank         *int     `json:"rank,omitempty"`
}

// RawPrice is one price quote from an external pricing source, already
// converted to USD per 1M tokens. Nil means the source had no usable value.
type RawPrice struct {
	ExternalModelID string     `json:"external_model_id"`
	InputPrice1M    *float64   `json:"input_price_1m"`
	OutputPrice1M   *float64   `json:"output_price_1m"`
	CachedInput1M   *float64   `json:"cached_input_1m"`
	BatchInput1M    *float64   `json:"batch_input_1m"`
	BatchOutput1M   *float64   `json:"batch_output_1m"`
	ImagePrice      *float64   `json:"image_price"`
	SourceURL       string     `json:"source_url"`
	SourceName      string     `json:"source_name"`
	SnapshotAt      time.Time  `json:"snapshot_at"`
	Confidence      Confidence `json:"confidence"`
}
