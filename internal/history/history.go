// Package history maintains the bounded, time-windowed ledger of the
// requester's past successful mugs, refreshed from the Torn API on a TTL.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/homiewrecker/hawkeye/internal/logger"
	"github.com/homiewrecker/hawkeye/internal/models"
	"github.com/homiewrecker/hawkeye/internal/storage"
	"github.com/homiewrecker/hawkeye/internal/torn"
)

// Store owns the attack ledger: a descending-by-time window of successful
// mugs, persisted across sessions with its last-fetch instant.
type Store struct {
	storage  *storage.Storage
	client   *torn.Client
	lookback time.Duration
	ttl      time.Duration
	group    singleflight.Group
	now      func() time.Time
}

// New creates a history store over the given storage and client.
func New(s *storage.Storage, c *torn.Client, lookbackDays int, ttl time.Duration) *Store {
	return &Store{
		storage:  s,
		client:   c,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Cached returns the persisted ledger without any freshness check or I/O.
func (h *Store) Cached() ([]models.AttackRecord, error) {
	return h.storage.LoadAttacks()
}

// Refresh returns the ledger, fetching from the Torn API only when forced or
// when the cached copy is older than the TTL. The fetched window replaces the
// cache wholesale. On fetch failure the stale cache is left intact and the
// error is returned; callers may fall back to Cached.
//
// Overlapping calls share a single in-flight fetch: rapid triggers must not
// fan out into duplicate API requests.
func (h *Store) Refresh(ctx context.Context, force bool) ([]models.AttackRecord, error) {
	if !force {
		lastFetch, err := h.storage.LastFetch()
		if err != nil {
			return nil, err
		}
		if !lastFetch.IsZero() && h.now().Sub(lastFetch) < h.ttl {
			return h.storage.LoadAttacks()
		}
	}

	if !h.client.HasKey() {
		return nil, torn.ErrMissingKey
	}

	v, err, _ := h.group.Do("refresh", func() (any, error) {
		return h.fetchAndReplace(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.AttackRecord), nil
}

func (h *Store) fetchAndReplace(ctx context.Context) ([]models.AttackRecord, error) {
	to := h.now()
	from := to.Add(-h.lookback)

	records, err := h.client.FetchAttacks(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("history refresh: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	if err := h.storage.ReplaceAttacks(records, to); err != nil {
		return nil, fmt.Errorf("history refresh: %w", err)
	}

	logger.Info("Refreshed attack ledger: %d mugs in trailing %v window", len(records), h.lookback)
	return records, nil
}
