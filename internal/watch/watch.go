// Package watch maintains the user-curated set of targets flagged for
// attention. Membership is a pure signal contribution to scoring.
package watch

import (
	"github.com/homiewrecker/hawkeye/internal/logger"
	"github.com/homiewrecker/hawkeye/internal/storage"
)

// List is the persisted watchlist. Growth is unbounded; entries leave only by
// explicit user toggle.
type List struct {
	storage *storage.Storage
}

// New creates a watchlist over the given storage.
func New(s *storage.Storage) *List {
	return &List{storage: s}
}

// Toggle flips membership for the target and reports whether it is watched
// afterwards. The change is persisted synchronously.
func (l *List) Toggle(targetID string) (bool, error) {
	return l.storage.ToggleWatch(targetID)
}

// Contains reports membership. Storage errors degrade to "not watched"
// rather than blocking a scoring pass.
func (l *List) Contains(targetID string) bool {
	watched, err := l.storage.IsWatched(targetID)
	if err != nil {
		logger.Warn("Watchlist lookup failed for %s: %v", targetID, err)
		return false
	}
	return watched
}

// All returns every watched target ID.
func (l *List) All() ([]string, error) {
	return l.storage.Watchlist()
}
