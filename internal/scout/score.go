package scout

import (
	"math"

	"github.com/homiewrecker/hawkeye/internal/models"
)

// Hand-tuned logit terms. Empirically tuned against live targets, not
// derived; treat as given.
const (
	intercept  = -1.8
	wOnline    = 0.6
	wHospital  = -1.2
	wTraveling = -0.9
	wFreshness = 0.8
	wBazaar    = 0.5
	wBazaarVal = 0.7
	wLevel     = 0.3
	wDonator   = 0.15
	wPersonal  = 1.0
	wPersonal1 = 0.3 // thin personal history counts at reduced confidence
	wGlobal    = 0.6
	wChain     = 0.25
	wWatched   = 0.2

	bazaarNorm = 14.0
	moneyNorm  = 13.0

	freshnessCap = 360.0
	levelCap     = 100.0
	hourBiasAmp  = 0.15
)

// hourBias is a faint diurnal preference independent of historical data:
// lowest at 00:00, peaking at 12:00 game time.
func hourBias(hour int) float64 {
	rad := (2 * math.Pi * float64(hour)) / 24
	return hourBiasAmp * math.Sin(rad-math.Pi/2)
}

func log1p(x float64) float64 {
	return math.Log1p(math.Max(0, x))
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Score maps a feature set to a 0-100 mug likelihood via a fixed linear
// model and logistic squashing. Pure and deterministic.
func Score(f models.FeatureSet, minPersonalSamples int) int {
	z := intercept

	if f.Online {
		z += wOnline
	}
	if f.Hospitalized {
		z += wHospital
	}
	if f.Traveling {
		z += wTraveling
	}

	mins := math.Min(float64(f.LastActionMinutes), freshnessCap)
	z += (freshnessCap - mins) / freshnessCap * wFreshness

	if f.HasBazaar {
		z += wBazaar
	}
	z += log1p(float64(f.BazaarValue)) / bazaarNorm * wBazaarVal

	z += math.Min(float64(f.Level), levelCap) / levelCap * wLevel
	if f.Donator {
		z += wDonator
	}

	personalWeight := wPersonal1
	if f.PersonalSamples >= minPersonalSamples {
		personalWeight = wPersonal
	}
	z += log1p(f.PersonalMean) / moneyNorm * personalWeight
	z += log1p(f.GlobalHourMean) / moneyNorm * wGlobal

	if f.ChainWindow {
		z += wChain
	}
	if f.Watched {
		z += wWatched
	}
	z += hourBias(f.Hour)

	return int(math.Round(sigmoid(z) * 100))
}

// Classify partitions a score into three ordered bands. The partition is
// monotone: a higher score never yields a lower band.
func Classify(score, maybeThreshold, juicyThreshold int) models.Band {
	switch {
	case score >= juicyThreshold:
		return models.BandJuicy
	case score >= maybeThreshold:
		return models.BandMaybe
	default:
		return models.BandDry
	}
}
