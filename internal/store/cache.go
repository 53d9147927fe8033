package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	getCachedSQL = `SELECT value, expires_at FROM api_cache WHERE key = ?`

	setCachedSQL = `
		INSERT INTO api_cache (key, value, expires_at, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`

	deleteCachedSQL = `DELETE FROM api_cache WHERE key = ?`
)

// GetCached returns the cached JSON for key, decoded into out. An entry
// past its expiry is treated as absent and deleted on the spot; there is
// no background sweep.
func (s *Store) GetCached(ctx context.Context, key string, out any) (bool, error) {
	var (
		raw       string
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx, getCachedSQL, key).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !time.Now().Before(expiresAt) {
		_, err = s.db.ExecContext(ctx, deleteCachedSQL, key)
		return false, err
	}

	if err = json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("cache entry %q: %w", key, err)
	}
	return true, nil
}

// SetCached stores value as JSON under key, valid for ttl from now.
// Concurrent writers race to the same final value; last write wins.
func (s *Store) SetCached(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache entry %q: %w", key, err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, setCachedSQL, key, string(raw), now.Add(ttl), now)
	return err
}

// DeleteCached drops the entry for key, if any.
func (s *Store) DeleteCached(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, deleteCachedSQL, key)
	return err
}
