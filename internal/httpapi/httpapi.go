// Package httpapi exposes the bridge over a small JSON API. It is a
// thin adapter: handlers translate requests into client calls and
// report the boolean outcome, with no policy of their own.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"hvac-bridge/internal/hvac"
	"hvac-bridge/internal/rooms"
	"hvac-bridge/internal/tado"
)

// HeatingClient is the part of the Tado client the API needs.
type HeatingClient interface {
	ListZones(ctx context.Context) ([]string, error)
	StartOAuthFlow(ctx context.Context) (tado.DeviceAuthorization, error)
	PollOAuthCompletion(ctx context.Context, deviceCode string) (*tado.TokenPair, error)
}

// CoolingClient is the part of the MELCloud client the API needs.
type CoolingClient interface {
	ListDevices(ctx context.Context) ([]string, error)
}

type WeatherClient interface {
	GetOutdoorTemperature(ctx context.Context) (float64, bool)
}

type RoomController interface {
	Rooms() []rooms.Room
	GetStatus(ctx context.Context) []rooms.Status
	TurnOn(ctx context.Context, name string, setpoint float64, opts ...hvac.Option) bool
	TurnOff(ctx context.Context, name string) bool
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	heating HeatingClient
	cooling CoolingClient
	weather WeatherClient
	rooms   RoomController
	store   Pinger
	logger  *slog.Logger
}

func New(heating HeatingClient, cooling CoolingClient, weather WeatherClient, controller RoomController, store Pinger, logger *slog.Logger) *Server {
	return &Server{
		heating: heating,
		cooling: cooling,
		weather: weather,
		rooms:   controller,
		store:   store,
		logger:  logger,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/inventory", s.inventory)
	mux.HandleFunc("GET /api/weather", s.outdoorWeather)
	mux.HandleFunc("GET /api/rooms", s.roomStatus)
	mux.HandleFunc("POST /api/rooms/{room}/on", s.roomOn)
	mux.HandleFunc("POST /api/rooms/{room}/off", s.roomOff)
	mux.HandleFunc("POST /api/tado/auth/start", s.authStart)
	mux.HandleFunc("POST /api/tado/auth/poll", s.authPoll)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) health(w http.ResponseWriter, req *http.Request) {
	if err := s.store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

// inventory lists both providers' device names. It doubles as a
// connection self-test: a live call must succeed against each provider
// unless its inventory is freshly cached.
func (s *Server) inventory(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	response := struct {
		Zones     []string     `json:"zones"`
		ACDevices []string     `json:"ac_devices"`
		Rooms     []rooms.Room `json:"rooms"`
	}{
		Rooms: s.rooms.Rooms(),
	}

	var err error
	if response.Zones, err = s.heating.ListZones(ctx); err != nil {
		s.logger.Error("inventory: tado", "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "tado: " + err.Error()})
		return
	}
	if response.ACDevices, err = s.cooling.ListDevices(ctx); err != nil {
		s.logger.Error("inventory: melcloud", "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "melcloud: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) outdoorWeather(w http.ResponseWriter, req *http.Request) {
	temp, ok := s.weather.GetOutdoorTemperature(req.Context())
	if !ok {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "weather unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"temperature": temp})
}

func (s *Server) roomStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, s.rooms.GetStatus(req.Context()))
}

type roomOnRequest struct {
	Setpoint float64 `json:"setpoint"`
	Minutes  int     `json:"minutes"`
	Mode     string  `json:"mode"`
	Fan      string  `json:"fan"`
	Vanes    *bool   `json:"vanes"`
}

func (s *Server) roomOn(w http.ResponseWriter, req *http.Request) {
	var body roomOnRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}
	if body.Setpoint == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "setpoint is required"})
		return
	}

	var opts []hvac.Option
	if body.Minutes > 0 {
		opts = append(opts, hvac.WithDuration(body.Minutes))
	}
	if body.Mode != "" {
		opts = append(opts, hvac.WithMode(body.Mode))
	}
	if body.Fan != "" {
		opts = append(opts, hvac.WithFan(body.Fan))
	}
	if body.Vanes != nil {
		opts = append(opts, hvac.WithVanes(*body.Vanes))
	}

	s.commandResult(w, s.rooms.TurnOn(req.Context(), req.PathValue("room"), body.Setpoint, opts...))
}

func (s *Server) roomOff(w http.ResponseWriter, req *http.Request) {
	s.commandResult(w, s.rooms.TurnOff(req.Context(), req.PathValue("room")))
}

func (s *Server) commandResult(w http.ResponseWriter, ok bool) {
	if !ok {
		writeJSON(w, http.StatusBadGateway, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// authStart kicks off the one-time Tado device-code flow. Bootstrap
// errors are surfaced verbatim: the caller is an operator fixing auth.
func (s *Server) authStart(w http.ResponseWriter, req *http.Request) {
	auth, err := s.heating.StartOAuthFlow(req.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

func (s *Server) authPoll(w http.ResponseWriter, req *http.Request) {
	var body struct {
		DeviceCode string `json:"device_code"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.DeviceCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "device_code is required"})
		return
	}

	pair, err := s.heating.PollOAuthCompletion(req.Context(), body.DeviceCode)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if pair == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
