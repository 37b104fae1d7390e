// Package pricing fetches model price quotes from external sources, resolves
// them against the catalog and persists them as current price records.
package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// PerTokenThreshold separates per-token from per-million quotes. Values below
// it are treated as USD per token and scaled by 1e6. This assumes no real
// per-million price is under one cent; a legitimately cheaper model would be
// inflated a million-fold.
const PerTokenThreshold = 0.01

// ToUSDPer1M converts a raw numeric or numeric-string price into USD per 1M
// tokens. Non-numeric, non-finite and non-positive input reports false.
func ToUSDPer1M(raw any) (float64, bool) {
	v, ok := toFloat(raw)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	if v < PerTokenThreshold {
		return v * 1_000_000, true
	}
	return v, true
}

// CleanPrice re-validates a per-million price and rounds it to 6 decimals.
func CleanPrice(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return math.Round(v*1e6) / 1e6, true
}

// NormalizePrice runs ToUSDPer1M then CleanPrice, returning nil for any
// invalid input so the value is dropped rather than reported.
func NormalizePrice(raw any) *float64 {
	v, ok := ToUSDPer1M(raw)
	if !ok {
		return nil
	}
	v, ok = CleanPrice(v)
	if !ok {
		return nil
	}
	return &v
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
