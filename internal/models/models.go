// Package models defines the core domain entities: attack records, target
// signals, feature sets, and scoring verdicts.
package models

import (
	"errors"
	"time"
)

// AttackRecord is one historical successful mug: a money-yielding attack the
// requester performed against a target. Immutable once created.
type AttackRecord struct {
	Timestamp time.Time `json:"timestamp"`
	TargetID  string    `json:"target_id"`
	Money     int64     `json:"money"`
}

// Validate checks attack record field constraints.
func (r *AttackRecord) Validate() error {
	if r.TargetID == "" {
		return errors.New("target ID must not be empty")
	}
	if r.Money <= 0 {
		return errors.New("money must be positive")
	}
	if r.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}

// ProfileStatus holds the normalized signals read from a target's profile.
// LastActionMinutes is capped at 360: six hours of inactivity and "unknown"
// are treated the same.
type ProfileStatus struct {
	LastActionMinutes int  `json:"last_action_minutes"`
	Online            bool `json:"online"`
	Hospitalized      bool `json:"hospitalized"`
	Traveling         bool `json:"traveling"`
	Level             int  `json:"level"`
	Donator           bool `json:"donator"`
}

// NeutralProfile is the fallback when the status signal is disabled or the
// fetch fails: maximally stale, offline, level unknown.
func NeutralProfile() ProfileStatus {
	return ProfileStatus{LastActionMinutes: 360}
}

// BazaarSummary holds the aggregated bazaar signal for a target.
type BazaarSummary struct {
	HasBazaar bool  `json:"has_bazaar"`
	ListValue int64 `json:"list_value"`
}

// FeatureSet is the flattened per-target snapshot fed to scoring. Ephemeral;
// rebuilt on every scoring call.
type FeatureSet struct {
	TargetID          string  `json:"target_id"`
	LastActionMinutes int     `json:"last_action_minutes"`
	Online            bool    `json:"online"`
	Hospitalized      bool    `json:"hospitalized"`
	Traveling         bool    `json:"traveling"`
	Level             int     `json:"level"`
	Donator           bool    `json:"donator"`
	HasBazaar         bool    `json:"has_bazaar"`
	BazaarValue       int64   `json:"bazaar_value"`
	PersonalMean      float64 `json:"personal_mean"`
	PersonalSamples   int     `json:"personal_samples"`
	GlobalHourMean    float64 `json:"global_hour_mean"`
	Hour              int     `json:"hour"`
	ChainWindow       bool    `json:"chain_window"`
	Watched           bool    `json:"watched"`
}

// Band is the classification of a score into one of three ordered bands.
type Band string

const (
	BandDry   Band = "dry"
	BandMaybe Band = "maybe"
	BandJuicy Band = "juicy"
)

// Rank returns the ordinal position of the band, higher = more promising.
func (b Band) Rank() int {
	switch b {
	case BandJuicy:
		return 2
	case BandMaybe:
		return 1
	default:
		return 0
	}
}

// Verdict is the scored outcome for one target.
type Verdict struct {
	TargetID string    `json:"target_id"`
	Score    int       `json:"score"`
	Band     Band      `json:"band"`
	ScoredAt time.Time `json:"scored_at"`
}

// Notification records an outbound alert about a target, used to enforce the
// notify cooldown.
type Notification struct {
	ID       string    `json:"id"`
	TargetID string    `json:"target_id"`
	Score    int       `json:"score"`
	Band     Band      `json:"band"`
	SentAt   time.Time `json:"sent_at"`
}
