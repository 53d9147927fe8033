package tado

import (
	"context"
	"fmt"
	"net/http"

	"hvac-bridge/internal/hvac"
	"hvac-bridge/internal/sanitize"
)

// Zone is one heating zone of the home.
type Zone struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ZoneState is the normalized per-zone state. Fields the provider did
// not report are nil, never an error.
type ZoneState struct {
	Temperature  *float64 `json:"temperature"`
	HeatingPower *float64 `json:"heating_power"`
	Overlay      bool     `json:"overlay"`
}

type zoneStateResponse struct {
	SensorDataPoints struct {
		InsideTemperature *struct {
			Celsius float64 `json:"celsius"`
		} `json:"insideTemperature"`
	} `json:"sensorDataPoints"`
	ActivityDataPoints struct {
		HeatingPower *struct {
			Percentage float64 `json:"percentage"`
		} `json:"heatingPower"`
	} `json:"activityDataPoints"`
	Overlay *struct {
		Type string `json:"type"`
	} `json:"overlay"`
}

type temperature struct {
	Celsius float64 `json:"celsius"`
}

type overlayRequest struct {
	Setting struct {
		Type        string      `json:"type"`
		Power       string      `json:"power"`
		Temperature temperature `json:"temperature"`
	} `json:"setting"`
	Termination struct {
		Type              string `json:"type"`
		DurationInSeconds int    `json:"durationInSeconds"`
	} `json:"termination"`
}

var simZones = []string{"Master Bedroom", "Living Room", "Kitchen"}

// ListZones returns the names of all heating zones, from the shared
// cache when fresh (topology rarely changes).
func (c *Client) ListZones(ctx context.Context) ([]string, error) {
	if c.simMode {
		c.logger.Info("[sim] listing tado zones")
		return simZones, nil
	}

	zones, err := c.getZones(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(zones))
	for i, zone := range zones {
		names[i] = zone.Name
	}
	return names, nil
}

func (c *Client) getZones(ctx context.Context) ([]Zone, error) {
	key := "tado:zones:" + c.homeID

	var zones []Zone
	found, err := c.store.GetCached(ctx, key, &zones)
	if err != nil {
		return nil, fmt.Errorf("zone cache: %w", err)
	}
	if found {
		return zones, nil
	}

	if err = c.call(ctx, http.MethodGet, "/homes/"+c.homeID+"/zones", nil, &zones); err != nil {
		return nil, err
	}
	for i := range zones {
		zones[i].Name = sanitize.Name(zones[i].Name)
	}

	if err = c.store.SetCached(ctx, key, zones, zoneListTTL); err != nil {
		c.logger.Warn("failed to cache zone list", "err", err)
	}
	return zones, nil
}

func (c *Client) zoneID(ctx context.Context, name string) (int, error) {
	zones, err := c.getZones(ctx)
	if err != nil {
		return 0, err
	}

	name = sanitize.Name(name)
	for _, zone := range zones {
		if zone.Name == name {
			return zone.ID, nil
		}
	}
	return 0, &hvac.Error{Kind: hvac.KindLookupMiss, Message: "zone not found: " + name}
}

// GetZoneState returns the current state of the named zone, served from
// the shared cache when fresh.
func (c *Client) GetZoneState(ctx context.Context, name string) (*ZoneState, error) {
	if c.simMode {
		temp, power := 19.5, 0.0
		return &ZoneState{Temperature: &temp, HeatingPower: &power}, nil
	}

	zoneID, err := c.zoneID(ctx, name)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("tado:zone_state:%s:%d", c.homeID, zoneID)
	var state ZoneState
	found, err := c.store.GetCached(ctx, key, &state)
	if err != nil {
		return nil, fmt.Errorf("zone state cache: %w", err)
	}
	if found {
		return &state, nil
	}

	var raw zoneStateResponse
	if err = c.call(ctx, http.MethodGet, fmt.Sprintf("/homes/%s/zones/%d/state", c.homeID, zoneID), nil, &raw); err != nil {
		return nil, err
	}

	if raw.SensorDataPoints.InsideTemperature != nil {
		state.Temperature = &raw.SensorDataPoints.InsideTemperature.Celsius
	}
	if raw.ActivityDataPoints.HeatingPower != nil {
		state.HeatingPower = &raw.ActivityDataPoints.HeatingPower.Percentage
	}
	state.Overlay = raw.Overlay != nil

	if err = c.store.SetCached(ctx, key, state, zoneStateTTL); err != nil {
		c.logger.Warn("failed to cache zone state", "err", err)
	}
	return &state, nil
}

// TurnOn places a timed heating overlay on the zone. The duration is
// clamped to the provider minimum; the overlay expires by itself, which
// bounds the blast radius of any single control action.
func (c *Client) TurnOn(ctx context.Context, name string, setpoint float64, opts ...hvac.Option) bool {
	o := hvac.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if c.simMode {
		c.logger.Info("[sim] tado turn on", "zone", name, "setpoint", setpoint, "minutes", o.Minutes)
		return true
	}

	if err := c.setOverlay(ctx, name, setpoint, o.Minutes); err != nil {
		c.logger.Error("failed to turn on tado zone", "zone", name, "kind", hvac.KindOf(err).String(), "err", err)
		return false
	}
	c.logger.Info("tado zone turned on", "zone", name, "setpoint", setpoint, "minutes", o.Minutes)
	return true
}

func (c *Client) setOverlay(ctx context.Context, name string, setpoint float64, minutes int) error {
	zoneID, err := c.zoneID(ctx, name)
	if err != nil {
		return err
	}

	duration := minutes * 60
	if duration < minOverlaySeconds {
		duration = minOverlaySeconds
	}

	var overlay overlayRequest
	overlay.Setting.Type = "HEATING"
	overlay.Setting.Power = "ON"
	overlay.Setting.Temperature = temperature{Celsius: setpoint}
	overlay.Termination.Type = "TIMER"
	overlay.Termination.DurationInSeconds = duration

	return c.call(ctx, http.MethodPut, fmt.Sprintf("/homes/%s/zones/%d/overlay", c.homeID, zoneID), overlay, nil)
}

// TurnOff removes the overlay, reverting the zone to its own schedule.
func (c *Client) TurnOff(ctx context.Context, name string) bool {
	if c.simMode {
		c.logger.Info("[sim] tado turn off", "zone", name)
		return true
	}

	err := func() error {
		zoneID, err := c.zoneID(ctx, name)
		if err != nil {
			return err
		}
		return c.call(ctx, http.MethodDelete, fmt.Sprintf("/homes/%s/zones/%d/overlay", c.homeID, zoneID), nil, nil)
	}()
	if err != nil {
		c.logger.Error("failed to turn off tado zone", "zone", name, "kind", hvac.KindOf(err).String(), "err", err)
		return false
	}
	c.logger.Info("tado zone turned off", "zone", name)
	return true
}

// GetTemperature returns the zone's current temperature in Celsius.
func (c *Client) GetTemperature(ctx context.Context, name string) (float64, bool) {
	if c.simMode {
		return 19.5, true
	}

	state, err := c.GetZoneState(ctx, name)
	if err != nil {
		c.logger.Error("failed to get tado temperature", "zone", name, "kind", hvac.KindOf(err).String(), "err", err)
		return 0, false
	}
	if state.Temperature == nil {
		return 0, false
	}
	return *state.Temperature, true
}

// GetHeatingPower returns the zone's heating power percentage (0-100).
func (c *Client) GetHeatingPower(ctx context.Context, name string) (float64, bool) {
	if c.simMode {
		return 0, true
	}

	state, err := c.GetZoneState(ctx, name)
	if err != nil {
		c.logger.Error("failed to get tado heating power", "zone", name, "kind", hvac.KindOf(err).String(), "err", err)
		return 0, false
	}
	if state.HeatingPower == nil {
		return 0, false
	}
	return *state.HeatingPower, true
}
