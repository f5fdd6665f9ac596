package model

import (
	"math"
	"time"
)

// DecayWeight returns the exponential half-life weight for an event of the
// given age: 1 at age zero, 0.5 after one half-life, approaching but never
// reaching 0. Negative ages are clamped to zero.
func DecayWeight(age time.Duration, halfLifeDays int) float64 {
	if age < 0 {
		age = 0
	}
	half := time.Duration(halfLifeDays) * 24 * time.Hour
	return math.Pow(0.5, float64(age)/float64(half))
}
