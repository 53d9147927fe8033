package serve

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"hvac-bridge/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_makeTasks(t *testing.T) {
	cfg := viper.New()
	cfg.SetConfigType("yaml")
	require.NoError(t, cfg.ReadConfig(bytes.NewBufferString(`
sim-mode: true
server:
  addr: :8080
prometheus:
  addr: :9090
`)))

	s, err := store.Open(filepath.Join(t.TempDir(), "hvac.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tasks := makeTasks(cfg, s, nil, prometheus.NewPedanticRegistry(), slog.Default())
	assert.Len(t, tasks, 2)
}

func Test_maybeLoadRooms(t *testing.T) {
	dir := t.TempDir()

	// a missing registry is not an error
	roomList, err := maybeLoadRooms(filepath.Join(dir, "rooms.yaml"), slog.Default())
	require.NoError(t, err)
	assert.Empty(t, roomList)

	path := filepath.Join(dir, "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rooms:\n  - {name: Kitchen, tado_zone: Kitchen}\n"), 0o644))
	roomList, err = maybeLoadRooms(path, slog.Default())
	require.NoError(t, err)
	require.Len(t, roomList, 1)
	assert.Equal(t, "Kitchen", roomList[0].Name)

	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))
	_, err = maybeLoadRooms(path, slog.Default())
	assert.Error(t, err)
}
