// Package model builds decay-weighted hour-of-day models from the attack
// ledger. Models are derived, disposable views: rebuilt from a ledger
// snapshot on use, never persisted.
package model

import (
	"time"

	"github.com/homiewrecker/hawkeye/internal/models"
)

// HourBucket accumulates decay-weighted money totals for one hour of day.
type HourBucket struct {
	WeightedSum float64
	WeightTotal float64
	Count       int
}

// ExpectedMoney returns the weighted mean money for the bucket, or 0 when the
// bucket carries no weight. Zero means "no information", not "expect nothing".
func (b HourBucket) ExpectedMoney() float64 {
	if b.WeightTotal == 0 {
		return 0
	}
	return b.WeightedSum / b.WeightTotal
}

// TargetModel aggregates one target's history, overall and by hour.
type TargetModel struct {
	Aggregate HourBucket
	ByHour    [24]HourBucket
}

// Set holds the two models derived from a ledger snapshot: the population-wide
// hour-of-day prior and the per-target breakdown.
type Set struct {
	Global    [24]HourBucket
	PerTarget map[string]*TargetModel
}

// Target returns the model for the given target, or nil if the requester has
// no history against them.
func (s *Set) Target(id string) *TargetModel {
	if s == nil {
		return nil
	}
	return s.PerTarget[id]
}

// Hour returns the canonical hour of day for an instant: the game clock runs
// on UTC regardless of viewer locale.
func Hour(t time.Time) int {
	return t.UTC().Hour()
}

// Build aggregates the ledger into a model set in a single pass. Each record
// contributes money weighted by its age-based decay to the global bucket for
// its hour and to the target's aggregate and hourly buckets.
func Build(ledger []models.AttackRecord, now time.Time, halfLifeDays int) *Set {
	set := &Set{PerTarget: make(map[string]*TargetModel)}
	for _, rec := range ledger {
		w := DecayWeight(now.Sub(rec.Timestamp), halfLifeDays)
		h := Hour(rec.Timestamp)
		money := float64(rec.Money)

		set.Global[h].WeightedSum += money * w
		set.Global[h].WeightTotal += w
		set.Global[h].Count++

		tm := set.PerTarget[rec.TargetID]
		if tm == nil {
			tm = &TargetModel{}
			set.PerTarget[rec.TargetID] = tm
		}
		tm.Aggregate.WeightedSum += money * w
		tm.Aggregate.WeightTotal += w
		tm.Aggregate.Count++
		tm.ByHour[h].WeightedSum += money * w
		tm.ByHour[h].WeightTotal += w
		tm.ByHour[h].Count++
	}
	return set
}
