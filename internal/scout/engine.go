// Package scout fuses per-target signals into feature sets and scores them.
// It owns the caching and normalization of every signal; raw fetching is
// delegated to the torn client.
package scout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/homiewrecker/hawkeye/internal/history"
	"github.com/homiewrecker/hawkeye/internal/logger"
	"github.com/homiewrecker/hawkeye/internal/model"
	"github.com/homiewrecker/hawkeye/internal/models"
	"github.com/homiewrecker/hawkeye/internal/storage"
	"github.com/homiewrecker/hawkeye/internal/torn"
	"github.com/homiewrecker/hawkeye/internal/watch"
)

// Signal cache kinds. Each ages independently of the history-wide TTL.
const (
	signalProfile = "profile"
	signalBazaar  = "bazaar"
)

// Config holds the runtime-tunable scoring preferences.
type Config struct {
	HalfLifeDays       int           `json:"half_life_days"`
	MinPersonalSamples int           `json:"min_personal_samples"`
	JuicyThreshold     int           `json:"juicy_threshold"`
	MaybeThreshold     int           `json:"maybe_threshold"`
	ChainMode          bool          `json:"chain_mode"`
	EnableStatus       bool          `json:"enable_status"`
	EnableBazaar       bool          `json:"enable_bazaar"`
	ProfileTTL         time.Duration `json:"profile_ttl"`
	BazaarTTL          time.Duration `json:"bazaar_ttl"`
	BazaarMinPrice     int64         `json:"bazaar_min_price"`
	BazaarMaxPrice     int64         `json:"bazaar_max_price"`
	BazaarTopN         int           `json:"bazaar_top_n"`
}

// Validate checks preference ranges.
func (c Config) Validate() error {
	if c.HalfLifeDays < 3 || c.HalfLifeDays > 60 {
		return errors.New("half_life_days must be between 3 and 60")
	}
	if c.MinPersonalSamples < 1 {
		return errors.New("min_personal_samples must be at least 1")
	}
	if c.JuicyThreshold < 0 || c.JuicyThreshold > 100 || c.MaybeThreshold < 0 || c.MaybeThreshold > 100 {
		return errors.New("thresholds must be between 0 and 100")
	}
	if c.MaybeThreshold > c.JuicyThreshold {
		return errors.New("maybe_threshold must not exceed juicy_threshold")
	}
	if c.BazaarMinPrice < 0 || c.BazaarMaxPrice <= c.BazaarMinPrice {
		return errors.New("bazaar price bounds are invalid")
	}
	if c.BazaarTopN < 1 {
		return errors.New("bazaar_top_n must be at least 1")
	}
	return nil
}

// Engine scores targets: it joins the history-derived models with live
// signals, the watchlist, and manual mode flags.
type Engine struct {
	storage *storage.Storage
	client  *torn.Client
	history *history.Store
	watch   *watch.List

	mu  sync.RWMutex
	cfg Config

	now func() time.Time
}

// Result pairs a verdict with the feature set that produced it.
type Result struct {
	Verdict  models.Verdict    `json:"verdict"`
	Features models.FeatureSet `json:"features"`
}

// NewEngine creates a scoring engine.
func NewEngine(st *storage.Storage, cl *torn.Client, hi *history.Store, wa *watch.List, cfg Config) *Engine {
	return &Engine{
		storage: st,
		client:  cl,
		history: hi,
		watch:   wa,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Prefs returns a copy of the current preferences.
func (e *Engine) Prefs() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetPrefs replaces the runtime preferences after validation.
func (e *Engine) SetPrefs(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid prefs: %w", err)
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

// ScoreTarget scores a single target against the current ledger.
func (e *Engine) ScoreTarget(ctx context.Context, targetID string) (Result, error) {
	set, err := e.buildModels(ctx)
	if err != nil {
		return Result{}, err
	}
	return e.scoreWithModels(ctx, targetID, set), nil
}

// ScoreRoster scores a batch of targets against one shared model build.
// Per-target signal failures degrade to neutral defaults; a broken signal
// never blocks the rest of the roster.
func (e *Engine) ScoreRoster(ctx context.Context, targetIDs []string) ([]Result, error) {
	set, err := e.buildModels(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(targetIDs))
	for _, id := range targetIDs {
		results = append(results, e.scoreWithModels(ctx, id, set))
	}
	return results, nil
}

// buildModels refreshes the ledger (TTL-gated) and rebuilds the models from
// the snapshot. A missing API key is fatal; any other refresh failure
// degrades to the last good ledger.
func (e *Engine) buildModels(ctx context.Context) (*model.Set, error) {
	ledger, err := e.history.Refresh(ctx, false)
	if err != nil {
		if errors.Is(err, torn.ErrMissingKey) {
			return nil, err
		}
		logger.Warn("History refresh failed, scoring from stale ledger: %v", err)
		ledger, err = e.history.Cached()
		if err != nil {
			return nil, err
		}
	}
	return model.Build(ledger, e.now(), e.Prefs().HalfLifeDays), nil
}

func (e *Engine) scoreWithModels(ctx context.Context, targetID string, set *model.Set) Result {
	cfg := e.Prefs()
	now := e.now()

	features := e.Collect(ctx, targetID, set)
	score := Score(features, cfg.MinPersonalSamples)
	return Result{
		Verdict: models.Verdict{
			TargetID: targetID,
			Score:    score,
			Band:     Classify(score, cfg.MaybeThreshold, cfg.JuicyThreshold),
			ScoredAt: now,
		},
		Features: features,
	}
}

// Collect gathers the flat per-target feature set: profile and bazaar
// signals (cached, independently aged), model lookups, watchlist membership,
// and the chain-mode flag.
func (e *Engine) Collect(ctx context.Context, targetID string, set *model.Set) models.FeatureSet {
	cfg := e.Prefs()
	now := e.now()
	hour := model.Hour(now)

	profile := e.profileSignal(ctx, targetID, cfg)
	bazaar := e.bazaarSignal(ctx, targetID, cfg)

	var personalMean float64
	var personalSamples int
	if tm := set.Target(targetID); tm != nil {
		personalMean = tm.Aggregate.ExpectedMoney()
		personalSamples = tm.Aggregate.Count
	}

	return models.FeatureSet{
		TargetID:          targetID,
		LastActionMinutes: profile.LastActionMinutes,
		Online:            profile.Online,
		Hospitalized:      profile.Hospitalized,
		Traveling:         profile.Traveling,
		Level:             profile.Level,
		Donator:           profile.Donator,
		HasBazaar:         bazaar.HasBazaar,
		BazaarValue:       bazaar.ListValue,
		PersonalMean:      personalMean,
		PersonalSamples:   personalSamples,
		GlobalHourMean:    set.Global[hour].ExpectedMoney(),
		Hour:              hour,
		ChainWindow:       cfg.ChainMode,
		Watched:           e.watch.Contains(targetID),
	}
}

// profileSignal returns the target's profile status, served from the signal
// cache inside its TTL. Disabled or failing signals degrade to the neutral
// profile: an unscored target is worse than a lower-confidence score.
func (e *Engine) profileSignal(ctx context.Context, targetID string, cfg Config) models.ProfileStatus {
	if !cfg.EnableStatus {
		return models.NeutralProfile()
	}

	var cached models.ProfileStatus
	if e.readSignal(targetID, signalProfile, cfg.ProfileTTL, &cached) {
		return cached
	}

	profile, err := e.client.FetchProfile(ctx, targetID)
	if err != nil {
		logger.Warn("Profile fetch failed for %s: %v", targetID, err)
		return models.NeutralProfile()
	}
	e.writeSignal(targetID, signalProfile, profile)
	return profile
}

// bazaarSignal returns the target's aggregated bazaar summary, cached with
// its own multi-hour TTL.
func (e *Engine) bazaarSignal(ctx context.Context, targetID string, cfg Config) models.BazaarSummary {
	if !cfg.EnableBazaar {
		return models.BazaarSummary{}
	}

	var cached models.BazaarSummary
	if e.readSignal(targetID, signalBazaar, cfg.BazaarTTL, &cached) {
		return cached
	}

	prices, hasBazaar, err := e.client.FetchBazaar(ctx, targetID)
	if err != nil {
		logger.Warn("Bazaar fetch failed for %s: %v", targetID, err)
		return models.BazaarSummary{}
	}
	summary := SummarizeBazaar(prices, hasBazaar, cfg.BazaarMinPrice, cfg.BazaarMaxPrice, cfg.BazaarTopN)
	e.writeSignal(targetID, signalBazaar, summary)
	return summary
}

func (e *Engine) readSignal(targetID, kind string, ttl time.Duration, out any) bool {
	payload, fetchedAt, ok, err := e.storage.GetSignal(targetID, kind)
	if err != nil {
		logger.Warn("Signal cache read failed for %s/%s: %v", targetID, kind, err)
		return false
	}
	if !ok || e.now().Sub(fetchedAt) >= ttl {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		logger.Warn("Corrupt signal cache entry for %s/%s: %v", targetID, kind, err)
		return false
	}
	return true
}

func (e *Engine) writeSignal(targetID, kind string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		logger.Warn("Signal cache marshal failed for %s/%s: %v", targetID, kind, err)
		return
	}
	if err := e.storage.PutSignal(targetID, kind, payload, e.now()); err != nil {
		logger.Warn("Signal cache write failed for %s/%s: %v", targetID, kind, err)
	}
}

// SummarizeBazaar aggregates raw listing prices into the bazaar signal:
// prices outside (minPrice, maxPrice) are rejected as noise or outliers, and
// only the topN cheapest qualifying listings are summed. The cheap slice is
// a liquidity proxy that a few outlier high-value items cannot skew.
func SummarizeBazaar(prices []int64, hasBazaar bool, minPrice, maxPrice int64, topN int) models.BazaarSummary {
	if !hasBazaar {
		return models.BazaarSummary{}
	}
	qualifying := make([]int64, 0, len(prices))
	for _, p := range prices {
		if p > minPrice && p < maxPrice {
			qualifying = append(qualifying, p)
		}
	}
	sort.Slice(qualifying, func(i, j int) bool { return qualifying[i] < qualifying[j] })
	if len(qualifying) > topN {
		qualifying = qualifying[:topN]
	}
	var total int64
	for _, p := range qualifying {
		total += p
	}
	return models.BazaarSummary{HasBazaar: true, ListValue: total}
}
