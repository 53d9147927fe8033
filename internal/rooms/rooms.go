// Package rooms maps logical rooms onto the underlying heating zones
// and air-conditioning units, and fans control actions out to them.
package rooms

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"hvac-bridge/internal/hvac"
	"hvac-bridge/internal/sanitize"

	"github.com/clambin/go-common/set"
	"gopkg.in/yaml.v3"
)

// Room ties a logical room to at most one heating zone and any number
// of air-conditioning units.
type Room struct {
	Name      string   `yaml:"name" json:"name"`
	TadoZone  string   `yaml:"tado_zone,omitempty" json:"tado_zone,omitempty"`
	ACDevices []string `yaml:"ac_devices,omitempty" json:"ac_devices,omitempty"`
}

type registryFile struct {
	Rooms []Room `yaml:"rooms"`
}

// Load reads the rooms registry. Names are normalized on the way in so
// lookups match the sanitized provider inventories.
func Load(r io.Reader) ([]Room, error) {
	var file registryFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("rooms registry: %w", err)
	}

	seen := set.New[string]()
	for i, room := range file.Rooms {
		name := sanitize.Name(room.Name)
		if name == "" {
			return nil, fmt.Errorf("rooms registry: room %d has no name", i)
		}
		if seen.Contains(name) {
			return nil, fmt.Errorf("rooms registry: duplicate room %q", name)
		}
		seen.Add(name)

		if room.TadoZone == "" && len(room.ACDevices) == 0 {
			return nil, fmt.Errorf("rooms registry: room %q has no zone and no devices", name)
		}

		file.Rooms[i].Name = name
		file.Rooms[i].TadoZone = sanitize.Name(room.TadoZone)
		for j, device := range room.ACDevices {
			file.Rooms[i].ACDevices[j] = sanitize.Name(device)
		}
	}
	return file.Rooms, nil
}

// Controller fans room-level actions out to the heating and AC clients.
type Controller struct {
	rooms    []Room
	radiator hvac.Device
	aircon   hvac.Device
	logger   *slog.Logger
}

func New(rooms []Room, radiator, aircon hvac.Device, logger *slog.Logger) *Controller {
	return &Controller{rooms: rooms, radiator: radiator, aircon: aircon, logger: logger}
}

// Rooms returns the registered rooms.
func (c *Controller) Rooms() []Room {
	return c.rooms
}

func (c *Controller) room(name string) (Room, bool) {
	name = sanitize.Name(name)
	for _, room := range c.rooms {
		if room.Name == name {
			return room, true
		}
	}
	return Room{}, false
}

// TurnOn heats the room: the zone overlay and every AC unit, each with
// the same setpoint. One failing device does not stop the others; the
// result is true only when every action succeeded.
func (c *Controller) TurnOn(ctx context.Context, name string, setpoint float64, opts ...hvac.Option) bool {
	room, found := c.room(name)
	if !found {
		c.logger.Error("unknown room", "room", name)
		return false
	}

	ok := true
	if room.TadoZone != "" {
		if !c.radiator.TurnOn(ctx, room.TadoZone, setpoint, opts...) {
			ok = false
		}
	}
	for _, device := range room.ACDevices {
		if !c.aircon.TurnOn(ctx, device, setpoint, opts...) {
			ok = false
		}
	}
	return ok
}

// TurnOff turns off the room's zone overlay and every AC unit.
func (c *Controller) TurnOff(ctx context.Context, name string) bool {
	room, found := c.room(name)
	if !found {
		c.logger.Error("unknown room", "room", name)
		return false
	}

	ok := true
	if room.TadoZone != "" {
		if !c.radiator.TurnOff(ctx, room.TadoZone) {
			ok = false
		}
	}
	for _, device := range room.ACDevices {
		if !c.aircon.TurnOff(ctx, device) {
			ok = false
		}
	}
	return ok
}

// Status holds one room's temperature readings. A nil value means the
// source could not be read; the room still appears in the report.
type Status struct {
	Name     string              `json:"name"`
	Radiator *float64            `json:"radiator,omitempty"`
	AirCon   map[string]*float64 `json:"aircon,omitempty"`
}

// GetStatus reads every room's temperatures, one source at a time.
// Readings are deliberately sequential: both providers rate limit, and
// a status sweep must never trip that.
func (c *Controller) GetStatus(ctx context.Context) []Status {
	statuses := make([]Status, 0, len(c.rooms))
	for _, room := range c.rooms {
		status := Status{Name: room.Name}
		if room.TadoZone != "" {
			if temp, ok := c.radiator.GetTemperature(ctx, room.TadoZone); ok {
				status.Radiator = &temp
			}
		}
		if len(room.ACDevices) > 0 {
			status.AirCon = make(map[string]*float64, len(room.ACDevices))
			for _, device := range room.ACDevices {
				if temp, ok := c.aircon.GetTemperature(ctx, device); ok {
					status.AirCon[device] = &temp
				} else {
					status.AirCon[device] = nil
				}
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}
