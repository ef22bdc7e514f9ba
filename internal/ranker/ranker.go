package ranker

import (
	"math"
	"time"
)

// freshnessWindowHours is how long an item keeps earning a freshness bonus.
// The bonus decays linearly from 48 for a brand-new item to zero at 48 hours.
const freshnessWindowHours = 48.0

// ScoreInput carries everything the scorer needs. Weight is the source
// multiplier already resolved by the caller (>= 1, missing defaults to 1).
type ScoreInput struct {
	Stars     int
	Upvotes   int
	Weight    int
	Published time.Time
	Now       time.Time
}

// Score computes the relevance/freshness score for one item. Deterministic,
// no side effects: base engagement plus source weight plus freshness bonus,
// rounded to two decimal places.
func Score(in ScoreInput) float64 {
	base := float64(in.Stars) + float64(in.Upvotes)

	weight := float64(in.Weight)
	if weight < 1 {
		weight = 1
	}

	bonus := math.Max(0, freshnessWindowHours-hoursOld(in.Published, in.Now))

	return math.Round((base+weight+bonus)*100) / 100
}

// hoursOld normalizes the published timestamp to UTC before comparing; a
// zero-location time is treated as already UTC.
func hoursOld(published, now time.Time) float64 {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return now.UTC().Sub(published.UTC()).Hours()
}
