// Package scoring computes blended prices, quality-per-dollar and percentile
// value scores over a caller-chosen comparison set.
package scoring

import (
	"sort"

	"github.com/sells-group/valueboard/internal/model"
)

// Blended price weights: typical workloads read far fewer tokens than they write.
const (
	InputWeight  = 0.3
	OutputWeight = 0.7
)

// DegenerateScore is assigned to every tuple when quality-per-dollar does not vary.
const DegenerateScore = 50.0

// Tuple is one (model, domain) comparison input.
type Tuple struct {
	ModelID      string
	ModelSlug    string
	Domain       model.Domain
	QualityScore float64
	InputPrice   float64
	OutputPrice  float64
}

// Scored is a Tuple with its derived values.
type Scored struct {
	Tuple
	BlendedPrice     float64
	QualityPerDollar float64
	ValueScore       float64
	ValueRank        int
}

// BlendedPrice weights input and output price per 1M tokens.
func BlendedPrice(input, output float64) float64 {
	return input*InputWeight + output*OutputWeight
}

// QualityPerDollar divides quality by blended price, or 0 for a non-positive price.
func QualityPerDollar(quality, blended float64) float64 {
	if blended <= 0 {
		return 0
	}
	return quality / blended
}

// PercentileRank returns the share of values strictly below v, scaled to 0-100.
func PercentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}
	below := 0
	for _, x := range values {
		if x < v {
			below++
		}
	}
	return float64(below) / float64(len(values)) * 100
}

// ComputeValueScores scores every tuple against all tuples passed in the
// same call, then ranks within each domain by value score descending.
// Equal scores keep their input order. The result is in input order.
//
// When the positive quality-per-dollar values share one value (or there
// are none) every tuple scores DegenerateScore.
func ComputeValueScores(tuples []Tuple) []Scored {
	out := make([]Scored, len(tuples))
	qpds := make([]float64, len(tuples))
	for i, t := range tuples {
		blended := BlendedPrice(t.InputPrice, t.OutputPrice)
		out[i] = Scored{Tuple: t, BlendedPrice: blended, QualityPerDollar: QualityPerDollar(t.QualityScore, blended)}
		qpds[i] = out[i].QualityPerDollar
	}

	lo, hi, seen := 0.0, 0.0, false
	for _, q := range qpds {
		if q <= 0 {
			continue
		}
		if !seen {
			lo, hi, seen = q, q, true
			continue
		}
		lo, hi = min(lo, q), max(hi, q)
	}
	degenerate := lo == hi

	for i := range out {
		if degenerate {
			out[i].ValueScore = DegenerateScore
		} else {
			out[i].ValueScore = PercentileRank(qpds, out[i].QualityPerDollar)
		}
	}

	byDomain := make(map[model.Domain][]int)
	var order []model.Domain
	for i, s := range out {
		if _, ok := byDomain[s.Domain]; !ok {
			order = append(order, s.Domain)
		}
		byDomain[s.Domain] = append(byDomain[s.Domain], i)
	}
	for _, d := range order {
		idx := byDomain[d]
		sort.SliceStable(idx, func(a, b int) bool {
			return out[idx[a]].ValueScore > out[idx[b]].ValueScore
		})
		for rank, i := range idx {
			out[i].ValueRank = rank + 1
		}
	}
	return out
}

// RankByValue returns the indexes of scores ordered by value descending,
// ties in input order. Position i holds the entry ranked i+1.
func RankByValue(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	return idx
}
