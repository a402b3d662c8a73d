// Package calculations caches expensive optimizer results in SQLite.
package calculations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TTLOptimizer is the default lifetime of a cached optimizer result.
const TTLOptimizer = 24 * time.Hour

// Cache stores opaque, already-serialized optimizer results keyed by (kind, key).
// Callers encode with msgpack; the cache never inspects the payload.
type Cache struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewCache creates a cache over a database migrated with the cache schema.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		now: time.Now,
		log: log.With().Str("component", "calculations_cache").Logger(),
	}
}

// GetOptimizer returns the cached payload, or false when it is missing or expired.
func (c *Cache) GetOptimizer(kind, key string) ([]byte, bool) {
	var data []byte
	var expiresAt int64
	err := c.db.QueryRow(
		"SELECT data, expires_at FROM optimizer_cache WHERE kind = ? AND cache_key = ?",
		kind, key,
	).Scan(&data, &expiresAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Warn().Err(err).Str("kind", kind).Msg("Cache lookup failed")
		}
		return nil, false
	}

	if c.now().Unix() >= expiresAt {
		return nil, false
	}
	return data, true
}

// SetOptimizer stores data for ttl, replacing any previous entry.
func (c *Cache) SetOptimizer(kind, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLOptimizer
	}
	expiresAt := c.now().Add(ttl).Unix()

	_, err := c.db.Exec(`
		INSERT INTO optimizer_cache (kind, cache_key, data, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, cache_key) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at
	`, kind, key, data, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store %s cache entry: %w", kind, err)
	}
	return nil
}

// DeleteExpired removes entries that expired before now.
func (c *Cache) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM optimizer_cache WHERE expires_at <= ?", c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cache entries: %w", err)
	}
	if n > 0 {
		c.log.Debug().Int64("deleted", n).Msg("Expired optimizer results removed")
	}
	return n, nil
}
