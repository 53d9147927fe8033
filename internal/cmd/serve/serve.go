// Package serve wires the clients, the store and the API server
// together and runs them until interrupted.
package serve

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hvac-bridge/internal/httpapi"
	"hvac-bridge/internal/melcloud"
	"hvac-bridge/internal/rooms"
	"hvac-bridge/internal/store"
	"hvac-bridge/internal/tado"
	"hvac-bridge/internal/transport"
	"hvac-bridge/internal/weather"

	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = cobra.Command{
	Use:   "serve",
	Short: "Run the bridge API and metrics servers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var opts slog.HandlerOptions
		if viper.GetBool("debug") {
			opts.Level = slog.LevelDebug
		}
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &opts))
		slog.SetDefault(logger)

		s, err := store.Open(viper.GetString("database.path"))
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		defer func() { _ = s.Close() }()

		m, err := New(viper.GetViper(), s, prometheus.DefaultRegisterer, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger.Info("starting hvac-bridge", "version", cmd.Root().Version, "sim-mode", viper.GetBool("sim-mode"))
		defer logger.Info("hvac-bridge stopped")
		return m.Run(ctx)
	},
}

func New(cfg *viper.Viper, s *store.Store, registry prometheus.Registerer, logger *slog.Logger) (*taskmanager.Manager, error) {
	roomList, err := maybeLoadRooms(cfg.GetString("rooms.path"), logger)
	if err != nil {
		return nil, err
	}
	return taskmanager.New(makeTasks(cfg, s, roomList, registry, logger)...), nil
}

func maybeLoadRooms(path string, logger *slog.Logger) ([]rooms.Room, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("no rooms registry found; room endpoints will be empty", "path", path)
			err = nil
		}
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	return rooms.Load(f)
}

func makeTasks(cfg *viper.Viper, s *store.Store, roomList []rooms.Room, registry prometheus.Registerer, l *slog.Logger) []taskmanager.Task {
	simMode := cfg.GetBool("sim-mode")

	tadoMetrics := transport.New(nil, "tado")
	melcloudMetrics := transport.New(nil, "melcloud")
	weatherMetrics := transport.New(nil, "weather")
	if registry != nil {
		registry.MustRegister(tadoMetrics, melcloudMetrics, weatherMetrics)
	}

	heating := tado.New(
		cfg.GetString("tado.home_id"),
		simMode,
		s,
		&http.Client{Transport: tadoMetrics, Timeout: 10 * time.Second},
		l.With("component", "tado"),
	)
	cooling := melcloud.New(
		cfg.GetString("melcloud.email"),
		cfg.GetString("melcloud.password"),
		simMode,
		s,
		&http.Client{Transport: melcloudMetrics, Timeout: 10 * time.Second},
		l.With("component", "melcloud"),
	)
	outdoor := weather.New(
		cfg.GetFloat64("weather.latitude"),
		cfg.GetFloat64("weather.longitude"),
		simMode,
		&http.Client{Transport: weatherMetrics, Timeout: 10 * time.Second},
		l.With("component", "weather"),
	)

	controller := rooms.New(roomList, heating, cooling, l.With("component", "rooms"))
	api := httpapi.New(heating, cooling, outdoor, controller, s, l.With("component", "api"))

	return []taskmanager.Task{
		promserver.New(promserver.WithAddr(cfg.GetString("prometheus.addr"))),
		httpserver.New(cfg.GetString("server.addr"), api.Router()),
	}
}
