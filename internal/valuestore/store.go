// Package valuestore implements C5: the on-disk mirror of long-lived
// signed DHT records that bootstrap nodes use to survive restarts and
// republish critical records with signatures preserved (spec.md §4.5,
// §6.3). The schema and open/bucket-creation shape follow the teacher's
// node/store/db.go, adapted from bbolt buckets to the SQLite schema
// spec.md §6.3 requires explicitly (two named indexes, a composite
// primary key that lets multiple versions of one key coexist).
package valuestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dnamessenger.dev/core/internal/dht"
)

// ValueType mirrors spec.md §6.3's value_type discriminator.
type ValueType int64

const (
	TypeEphemeral7Day ValueType = 0x1001 // not persisted unless ttl overrides
	Type365Day        ValueType = 0x1002
	Type30Day         ValueType = 0x1003
	TypePermanent     ValueType = 0
)

const sevenDaysSeconds = 7 * 24 * 60 * 60

const schema = `
CREATE TABLE IF NOT EXISTS dht_values(
  key_hash TEXT NOT NULL,
  value_data BLOB NOT NULL,
  value_type INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  expires_at INTEGER,
  PRIMARY KEY (key_hash, created_at)
);
CREATE INDEX IF NOT EXISTS idx_dht_values_expires_at ON dht_values(expires_at);
CREATE INDEX IF NOT EXISTS idx_dht_values_key_hash ON dht_values(key_hash);
`

// Stats exposes the republish/cleanup counters (spec.md §4.5 "Statistics
// counters are exported").
type Stats struct {
	Persisted          int64
	SkippedEphemeral   int64
	RepublishAttempted int64
	RepublishSucceeded int64
	RepublishFailed    int64
	CleanupDeleted     int64
}

// Store is the persistent value store used by bootstrap nodes.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
	poll   time.Duration

	persisted          atomic.Int64
	skippedEphemeral   atomic.Int64
	republishAttempted atomic.Int64
	republishSucceeded atomic.Int64
	republishFailed    atomic.Int64
	cleanupDeleted     atomic.Int64
}

// Open creates (if needed) the SQLite database at path, in WAL journal
// mode, and ensures the schema exists.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("valuestore: path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("valuestore: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("valuestore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; republish worker takes the mutex per step, not the whole scan (spec.md §5)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("valuestore: create schema: %w", err)
	}
	return &Store{db: db, logger: slog.Default(), now: time.Now, poll: peerPollInterval}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetLogger overrides the default slog logger.
func (s *Store) SetLogger(l *slog.Logger) { s.logger = l }

// SetPollInterval overrides the connectivity poll cadence used while
// waiting for the transport to become ready. Tests use this to avoid
// waiting on the real 1-second default.
func (s *Store) SetPollInterval(d time.Duration) { s.poll = d }

// ShouldPersist implements the C5 filter (spec.md §4.5 step "Every put
// observed locally triggers a filter"): persist if ttlSeconds >= 7 days
// or the value type is not the 7-day-ephemeral discriminator.
func ShouldPersist(valueType ValueType, ttlSeconds uint32) bool {
	if valueType == TypeEphemeral7Day {
		return ttlSeconds >= sevenDaysSeconds
	}
	return true
}

// Observe is called for every put the local node sees (spec.md §4.5). It
// applies the persistence filter and, if the record should be kept,
// inserts a new version row.
func (s *Store) Observe(ctx context.Context, keyHash string, valueData []byte, valueType ValueType, ttlSeconds uint32) error {
	if !ShouldPersist(valueType, ttlSeconds) {
		s.skippedEphemeral.Add(1)
		return nil
	}
	createdAt := s.now().Unix()
	var expiresAt sql.NullInt64
	if ttlSeconds != dht.MaxTTL {
		expiresAt = sql.NullInt64{Int64: createdAt + int64(ttlSeconds), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO dht_values(key_hash, value_data, value_type, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		keyHash, valueData, int64(valueType), createdAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("valuestore: insert: %w", err)
	}
	s.persisted.Add(1)
	return nil
}

type latestRow struct {
	keyHash   string
	valueData []byte
	expiresAt sql.NullInt64
}

// latestRows returns, for each distinct key_hash, the row with the
// greatest created_at (spec.md §4.5 step 2).
func (s *Store) latestRows(ctx context.Context) ([]latestRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.key_hash, d.value_data, d.expires_at
		FROM dht_values d
		INNER JOIN (
			SELECT key_hash, MAX(created_at) AS max_created
			FROM dht_values
			GROUP BY key_hash
		) latest ON d.key_hash = latest.key_hash AND d.created_at = latest.max_created
	`)
	if err != nil {
		return nil, fmt.Errorf("valuestore: query latest: %w", err)
	}
	defer rows.Close()

	var out []latestRow
	for rows.Next() {
		var r latestRow
		if err := rows.Scan(&r.keyHash, &r.valueData, &r.expiresAt); err != nil {
			return nil, fmt.Errorf("valuestore: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteExpired removes rows whose expires_at < now (spec.md §4.5
// "Periodic cleanup"). Permanent rows (NULL expires_at) are never deleted.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dht_values WHERE expires_at IS NOT NULL AND expires_at < ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("valuestore: delete expired: %w", err)
	}
	n, _ := res.RowsAffected()
	s.cleanupDeleted.Add(n)
	return n, nil
}

func (s *Store) StatsSnapshot() Stats {
	return Stats{
		Persisted:          s.persisted.Load(),
		SkippedEphemeral:   s.skippedEphemeral.Load(),
		RepublishAttempted: s.republishAttempted.Load(),
		RepublishSucceeded: s.republishSucceeded.Load(),
		RepublishFailed:    s.republishFailed.Load(),
		CleanupDeleted:     s.cleanupDeleted.Load(),
	}
}
