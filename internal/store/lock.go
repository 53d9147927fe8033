package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lease-based advisory lock. SQLite has no server-side advisory locks
// (the original deployment used pg_advisory_lock), so a lock is a row
// with an owner and an expiry; acquisition is an atomic upsert that only
// succeeds when the row is absent or its lease has lapsed. The lease
// expiry guards against a crashed holder wedging everyone else forever.
const (
	lockLease        = time.Minute
	lockPollInterval = 100 * time.Millisecond

	acquireLockSQL = `
		INSERT INTO locks (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner      = excluded.owner,
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?
	`

	releaseLockSQL = `DELETE FROM locks WHERE name = ? AND owner = ?`
)

// Lock is a held named lock. Release it exactly once.
type Lock struct {
	store *Store
	name  string
	owner string
}

// AcquireLock blocks until the named lock is held or ctx is cancelled.
// The lock is visible to every process sharing the database. A store
// failure during acquisition is a hard error: there is no safe way to
// proceed without the lock.
func (s *Store) AcquireLock(ctx context.Context, name string) (*Lock, error) {
	owner := uuid.NewString()

	for {
		acquired, err := s.tryAcquire(ctx, name, owner)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %q: %w", name, err)
		}
		if acquired {
			return &Lock{store: s, name: name, owner: owner}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %q: %w", name, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

func (s *Store) tryAcquire(ctx context.Context, name, owner string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, acquireLockSQL, name, owner, now.Add(lockLease), now)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Release frees the lock. Only the owner's row is deleted, so releasing
// after the lease lapsed and another process took over is harmless.
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.store.db.ExecContext(ctx, releaseLockSQL, l.name, l.owner)
	if err != nil {
		return fmt.Errorf("release lock %q: %w", l.name, err)
	}
	return nil
}
