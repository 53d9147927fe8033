package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	getSecretSQL = `SELECT value FROM secrets WHERE key = ?`

	setSecretSQL = `
		INSERT INTO secrets (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`

	deleteSecretSQL = `DELETE FROM secrets WHERE key = ?`
)

// GetSecret returns the stored value for key, or "" if no such secret
// exists. Values are opaque to this layer.
func (s *Store) GetSecret(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, getSecretSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetSecret stores value under key, overwriting any previous value.
func (s *Store) SetSecret(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, setSecretSQL, key, value, time.Now().UTC())
	return err
}

// DeleteSecret removes the secret. Deleting a missing key is not an error.
func (s *Store) DeleteSecret(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, deleteSecretSQL, key)
	return err
}
