// Package storage provides SQLite-backed persistence for the attack ledger,
// watchlist, per-target signal cache, and notification log.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/homiewrecker/hawkeye/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db         *sql.DB
	maxAttacks int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/hawkeye/data.db.
func New(dbPath string, maxAttacks int) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "hawkeye", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAttacks: maxAttacks}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attacks (
			ts        INTEGER NOT NULL,
			target_id TEXT NOT NULL,
			money     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attacks_ts ON attacks(ts DESC)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			target_id TEXT PRIMARY KEY,
			added_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signal_cache (
			target_id  TEXT NOT NULL,
			kind       TEXT NOT NULL,
			payload    TEXT NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (target_id, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id        TEXT PRIMARY KEY,
			target_id TEXT NOT NULL,
			score     INTEGER NOT NULL,
			band      TEXT NOT NULL,
			sent_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_target ON notifications(target_id, sent_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const lastFetchKey = "attacks_last_fetch"

// ReplaceAttacks replaces the entire persisted ledger with the given records
// and stamps the fetch instant. Replacement is wholesale: records absent from
// the new window are dropped, never merged.
func (s *Storage) ReplaceAttacks(records []models.AttackRecord, fetchedAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM attacks`); err != nil {
		return fmt.Errorf("failed to clear attacks: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO attacks (ts, target_id, money) VALUES (?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("invalid attack record: %w", err)
		}
		if _, err := stmt.Exec(rec.Timestamp.UnixNano(), rec.TargetID, rec.Money); err != nil {
			return fmt.Errorf("failed to insert attack: %w", err)
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM attacks WHERE rowid NOT IN (
			SELECT rowid FROM attacks ORDER BY ts DESC LIMIT ?
		)`, s.maxAttacks); err != nil {
		return fmt.Errorf("failed to enforce attack cap: %w", err)
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?,?)`,
		lastFetchKey, fmt.Sprintf("%d", fetchedAt.UnixNano())); err != nil {
		return fmt.Errorf("failed to stamp fetch time: %w", err)
	}

	return tx.Commit()
}

// LoadAttacks returns the persisted ledger, newest first.
func (s *Storage) LoadAttacks() ([]models.AttackRecord, error) {
	rows, err := s.db.Query(`SELECT ts, target_id, money FROM attacks ORDER BY ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query attacks: %w", err)
	}
	defer rows.Close()

	records := []models.AttackRecord{}
	for rows.Next() {
		var rec models.AttackRecord
		var tsNano int64
		if err := rows.Scan(&tsNano, &rec.TargetID, &rec.Money); err != nil {
			return nil, fmt.Errorf("failed to scan attack: %w", err)
		}
		rec.Timestamp = time.Unix(0, tsNano).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LastFetch returns the instant of the last successful ledger refresh, or the
// zero time if no refresh has happened.
func (s *Storage) LastFetch() (time.Time, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, lastFetchKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read fetch time: %w", err)
	}
	var nano int64
	if _, err := fmt.Sscanf(value, "%d", &nano); err != nil {
		return time.Time{}, fmt.Errorf("corrupt fetch time %q: %w", value, err)
	}
	return time.Unix(0, nano).UTC(), nil
}

// ToggleWatch inserts the target if absent, removes it if present, and
// reports whether the target is watched afterwards.
func (s *Storage) ToggleWatch(targetID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM watchlist WHERE target_id = ?`, targetID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle watch: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return false, nil
	}
	if _, err := s.db.Exec(`INSERT INTO watchlist (target_id, added_at) VALUES (?,?)`,
		targetID, time.Now().UnixNano()); err != nil {
		return false, fmt.Errorf("failed to add watch: %w", err)
	}
	return true, nil
}

// IsWatched reports watchlist membership for a target.
func (s *Storage) IsWatched(targetID string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM watchlist WHERE target_id = ?`, targetID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check watch: %w", err)
	}
	return true, nil
}

// Watchlist returns all watched target IDs in insertion order.
func (s *Storage) Watchlist() ([]string, error) {
	rows, err := s.db.Query(`SELECT target_id FROM watchlist ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSignal returns the cached payload for (target, kind) and when it was
// fetched. ok is false when no entry exists.
func (s *Storage) GetSignal(targetID, kind string) (payload []byte, fetchedAt time.Time, ok bool, err error) {
	var raw string
	var nano int64
	err = s.db.QueryRow(`SELECT payload, fetched_at FROM signal_cache WHERE target_id = ? AND kind = ?`,
		targetID, kind).Scan(&raw, &nano)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("failed to read signal cache: %w", err)
	}
	return []byte(raw), time.Unix(0, nano).UTC(), true, nil
}

// PutSignal upserts the cached payload for (target, kind).
func (s *Storage) PutSignal(targetID, kind string, payload []byte, fetchedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO signal_cache (target_id, kind, payload, fetched_at)
		VALUES (?,?,?,?)`,
		targetID, kind, string(payload), fetchedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write signal cache: %w", err)
	}
	return nil
}

// AddNotification records an outbound notification.
func (s *Storage) AddNotification(n *models.Notification) error {
	_, err := s.db.Exec(`
		INSERT INTO notifications (id, target_id, score, band, sent_at)
		VALUES (?,?,?,?,?)`,
		n.ID, n.TargetID, n.Score, string(n.Band), n.SentAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// LastNotified returns when the target was last notified about, or the zero
// time if never.
func (s *Storage) LastNotified(targetID string) (time.Time, error) {
	var nano int64
	err := s.db.QueryRow(`
		SELECT sent_at FROM notifications WHERE target_id = ?
		ORDER BY sent_at DESC LIMIT 1`, targetID).Scan(&nano)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read notifications: %w", err)
	}
	return time.Unix(0, nano).UTC(), nil
}
