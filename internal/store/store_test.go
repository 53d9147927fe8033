package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "hvac.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Secrets(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	value, err := s.GetSecret(ctx, "tado_refresh_token")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, s.SetSecret(ctx, "tado_refresh_token", "old-token"))
	value, err = s.GetSecret(ctx, "tado_refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "old-token", value)

	// rotation: overwrite, never append. only the latest value survives.
	require.NoError(t, s.SetSecret(ctx, "tado_refresh_token", "new-token"))
	value, err = s.GetSecret(ctx, "tado_refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "new-token", value)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM secrets WHERE key = ?`, "tado_refresh_token").Scan(&count))
	assert.Equal(t, 1, count)

	require.NoError(t, s.DeleteSecret(ctx, "tado_refresh_token"))
	value, err = s.GetSecret(ctx, "tado_refresh_token")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, s.DeleteSecret(ctx, "tado_refresh_token"))
}

func TestStore_Cache(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	type zones struct {
		Names []string `json:"names"`
	}

	var out zones
	found, err := s.GetCached(ctx, "tado:zones:42", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetCached(ctx, "tado:zones:42", zones{Names: []string{"Kitchen"}}, time.Hour))

	// two reads with no intervening write return the identical value
	for range 2 {
		out = zones{}
		found, err = s.GetCached(ctx, "tado:zones:42", &out)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []string{"Kitchen"}, out.Names)
	}

	// upsert overwrites: one logical entry, second value wins
	require.NoError(t, s.SetCached(ctx, "tado:zones:42", zones{Names: []string{"Kitchen", "Study"}}, time.Hour))
	out = zones{}
	found, err = s.GetCached(ctx, "tado:zones:42", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"Kitchen", "Study"}, out.Names)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM api_cache WHERE key = ?`, "tado:zones:42").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStore_Cache_LazyExpiry(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCached(ctx, "tado:zone_state:42:7", map[string]float64{"celsius": 19.5}, -time.Second))

	var out map[string]float64
	found, err := s.GetCached(ctx, "tado:zone_state:42:7", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// the expired row is evicted as a side effect of the read
	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM api_cache`).Scan(&count))
	assert.Zero(t, count)
}

func TestStore_AcquireLock(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	lock, err := s.AcquireLock(ctx, "tado_token_refresh")
	require.NoError(t, err)

	// an independent lock name is not blocked
	other, err := s.AcquireLock(ctx, "melcloud_login")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	// a second holder blocks until release
	acquired := make(chan *Lock)
	go func() {
		l, err := s.AcquireLock(ctx, "tado_token_refresh")
		if err != nil {
			close(acquired)
			return
		}
		acquired <- l
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while still held")
	case <-time.After(250 * time.Millisecond):
	}

	require.NoError(t, lock.Release(ctx))

	select {
	case l := <-acquired:
		require.NotNil(t, l)
		require.NoError(t, l.Release(ctx))
	case <-time.After(5 * time.Second):
		t.Fatal("lock not acquired after release")
	}
}

func TestStore_AcquireLock_Cancelled(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	lock, err := s.AcquireLock(ctx, "tado_token_refresh")
	require.NoError(t, err)
	defer func() { _ = lock.Release(ctx) }()

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = s.AcquireLock(waitCtx, "tado_token_refresh")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
