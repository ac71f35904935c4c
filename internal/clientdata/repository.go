// Package clientdata provides persistent caching for market data collaborator responses.
// Snapshot parts are stored as msgpack blobs with expiration timestamps for cache-first behavior.
package clientdata

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind is one part of a market snapshot, cached in its own table
type Kind string

const (
	KindQuote        Kind = "quote"
	KindHistory      Kind = "history"
	KindIndicators   Kind = "indicators"
	KindFundamentals Kind = "fundamentals"
	KindForecast     Kind = "forecast"
	KindSentiment    Kind = "sentiment"
)

// AllKinds lists every cached snapshot part for cleanup operations.
var AllKinds = []Kind{
	KindQuote,
	KindHistory,
	KindIndicators,
	KindFundamentals,
	KindForecast,
	KindSentiment,
}

// validKinds is a set for O(1) kind validation.
var validKinds = func() map[Kind]bool {
	m := make(map[Kind]bool, len(AllKinds))
	for _, k := range AllKinds {
		m[k] = true
	}
	return m
}()

// Table returns the cache table holding this kind
func (k Kind) Table() string {
	return "snapshot_" + string(k)
}

// CacheKey builds the instrument:kind:YYYY-MM-DD key. The day is taken in UTC.
func CacheKey(instrument string, kind Kind, day time.Time) string {
	return fmt.Sprintf("%s:%s:%s", strings.ToUpper(strings.TrimSpace(instrument)), kind, day.UTC().Format("2006-01-02"))
}

// Repository provides cache operations for snapshot parts.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new snapshot cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// validateKind ensures the kind maps to a known table.
// This prevents SQL injection through table names.
func validateKind(kind Kind) error {
	if !validKinds[kind] {
		return fmt.Errorf("invalid cache kind: %s", kind)
	}
	return nil
}

// Store saves data with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *Repository) Store(kind Kind, key string, data interface{}, ttl time.Duration) error {
	if err := validateKind(kind); err != nil {
		return err
	}

	payload, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := r.now().Add(ttl).Unix()

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (cache_key, data, expires_at) VALUES (?, ?, ?)",
		kind.Table(),
	)
	if _, err := r.db.Exec(query, key, payload, expiresAt); err != nil {
		return fmt.Errorf("failed to store data in %s: %w", kind.Table(), err)
	}

	return nil
}

// GetIfFresh returns data only if expires_at > now.
// Returns nil, nil if the key doesn't exist or data is expired.
// Use Get() to retrieve stale data as a fallback when fetches fail.
func (r *Repository) GetIfFresh(kind Kind, key string) ([]byte, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE cache_key = ? AND expires_at > ?", kind.Table())
	return r.scan(kind, query, key, r.now().Unix())
}

// Get returns data regardless of expiration status.
// Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(kind Kind, key string) ([]byte, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE cache_key = ?", kind.Table())
	return r.scan(kind, query, key)
}

func (r *Repository) scan(kind Kind, query string, args ...interface{}) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data from %s: %w", kind.Table(), err)
	}
	return data, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(kind Kind, key string) error {
	if err := validateKind(kind); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE cache_key = ?", kind.Table())
	if _, err := r.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", kind.Table(), err)
	}

	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(kind Kind) (int64, error) {
	if err := validateKind(kind); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", kind.Table())
	result, err := r.db.Exec(query, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", kind.Table(), err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", kind.Table(), err)
	}

	return deleted, nil
}

// DeleteAllExpired removes expired entries of every kind.
// Returns a map of kind to number of rows deleted.
func (r *Repository) DeleteAllExpired() (map[Kind]int64, error) {
	results := make(map[Kind]int64)

	for _, kind := range AllKinds {
		deleted, err := r.DeleteExpired(kind)
		if err != nil {
			return results, err
		}
		results[kind] = deleted
	}

	return results, nil
}
