package melcloud

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"hvac-bridge/internal/hvac"
	"hvac-bridge/internal/sanitize"
)

// EffectiveFlags bits. SetAta only applies the fields whose bit is set.
const (
	flagPower          = 0x01
	flagOperationMode  = 0x02
	flagSetTemperature = 0x04
	flagFanSpeed       = 0x08
	flagVaneVertical   = 0x10
	flagVaneHorizontal = 0x100
)

// vane positions meaning "swing"
const (
	vaneHorizontalSwing = 12
	vaneVerticalSwing   = 7
)

var operationModes = map[string]int{
	"heat": 1,
	"cool": 2,
	"dry":  3,
	"fan":  7,
	"auto": 8,
}

func modeToInt(mode string) int {
	if m, ok := operationModes[mode]; ok {
		return m
	}
	return operationModes["heat"]
}

// fanToInt maps a fan speed name to the wire value: 0 is automatic,
// 1 through 5 are fixed speeds. Unrecognized values fall back to auto.
func fanToInt(fan string) int {
	if n, err := strconv.Atoi(fan); err == nil && n >= 1 && n <= 5 {
		return n
	}
	return 0
}

// Device is one air-to-air unit.
type Device struct {
	ID         int    `json:"id"`
	BuildingID int    `json:"building_id"`
	Name       string `json:"name"`
}

// DeviceState is the normalized unit state. Fields the provider did not
// report are nil.
type DeviceState struct {
	Power             bool     `json:"power"`
	Mode              int      `json:"mode"`
	RoomTemperature   *float64 `json:"room_temperature"`
	TargetTemperature *float64 `json:"target_temperature"`
	FanSpeed          int      `json:"fan_speed"`
}

// The device tree nests devices under buildings, floors and areas, each
// of which can hold devices directly.
type siteBuilding struct {
	ID        int           `json:"ID"`
	Structure structureNode `json:"Structure"`
}

type structureNode struct {
	Devices []deviceEntry   `json:"Devices"`
	Areas   []structureNode `json:"Areas"`
	Floors  []structureNode `json:"Floors"`
}

type deviceEntry struct {
	DeviceID   int    `json:"DeviceID"`
	DeviceName string `json:"DeviceName"`
	DeviceType int    `json:"DeviceType"`
}

func collectDevices(node structureNode, buildingID int, devices []Device) []Device {
	for _, entry := range node.Devices {
		if entry.DeviceType != deviceTypeAirToAir {
			continue
		}
		devices = append(devices, Device{
			ID:         entry.DeviceID,
			BuildingID: buildingID,
			Name:       sanitize.Name(entry.DeviceName),
		})
	}
	for _, area := range node.Areas {
		devices = collectDevices(area, buildingID, devices)
	}
	for _, floor := range node.Floors {
		devices = collectDevices(floor, buildingID, devices)
	}
	return devices
}

var simDevices = []Device{
	{ID: 1, BuildingID: 1, Name: "Living"},
	{ID: 2, BuildingID: 1, Name: "Master bedroom"},
	{ID: 3, BuildingID: 1, Name: "Downstairs"},
}

// ListDevices returns the names of all air-to-air units across all
// buildings, from the shared cache when fresh.
func (c *Client) ListDevices(ctx context.Context) ([]string, error) {
	if c.simMode {
		c.logger.Info("[sim] listing melcloud devices")
		names := make([]string, len(simDevices))
		for i, d := range simDevices {
			names[i] = d.Name
		}
		return names, nil
	}

	devices, err := c.getDevices(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names, nil
}

func (c *Client) getDevices(ctx context.Context) ([]Device, error) {
	const key = "melcloud:devices"

	var devices []Device
	found, err := c.store.GetCached(ctx, key, &devices)
	if err != nil {
		return nil, fmt.Errorf("device cache: %w", err)
	}
	if found {
		return devices, nil
	}

	var sites []siteBuilding
	if err = c.call(ctx, http.MethodGet, "/User/ListDevices", nil, &sites); err != nil {
		return nil, err
	}
	for _, site := range sites {
		devices = collectDevices(site.Structure, site.ID, devices)
	}

	if err = c.store.SetCached(ctx, key, devices, deviceListTTL); err != nil {
		c.logger.Warn("failed to cache device list", "err", err)
	}
	return devices, nil
}

func (c *Client) device(ctx context.Context, name string) (Device, error) {
	devices, err := c.getDevices(ctx)
	if err != nil {
		return Device{}, err
	}

	name = sanitize.Name(name)
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, &hvac.Error{Kind: hvac.KindLookupMiss, Message: "device not found: " + name}
}

type deviceStateResponse struct {
	Power             bool     `json:"Power"`
	OperationMode     int      `json:"OperationMode"`
	RoomTemperature   *float64 `json:"RoomTemperature"`
	SetTemperature    *float64 `json:"SetTemperature"`
	SetFanSpeed       int      `json:"SetFanSpeed"`
	EffectiveFlags    int      `json:"EffectiveFlags"`
	HasPendingCommand bool     `json:"HasPendingCommand"`
}

// GetDeviceState returns the current state of the named unit, served
// from the shared cache when fresh. The TTL is short: commands applied
// by other apps show up within a minute.
func (c *Client) GetDeviceState(ctx context.Context, name string) (*DeviceState, error) {
	if c.simMode {
		temp := 20.0
		return &DeviceState{Power: false, Mode: modeToInt("heat"), RoomTemperature: &temp}, nil
	}

	device, err := c.device(ctx, name)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("melcloud:device_state:%d", device.ID)
	var state DeviceState
	found, err := c.store.GetCached(ctx, key, &state)
	if err != nil {
		return nil, fmt.Errorf("device state cache: %w", err)
	}
	if found {
		return &state, nil
	}

	var raw deviceStateResponse
	if err = c.call(ctx, http.MethodGet, fmtDevicePath(device.ID, device.BuildingID), nil, &raw); err != nil {
		return nil, err
	}

	state = DeviceState{
		Power:             raw.Power,
		Mode:              raw.OperationMode,
		RoomTemperature:   raw.RoomTemperature,
		TargetTemperature: raw.SetTemperature,
		FanSpeed:          raw.SetFanSpeed,
	}

	if err = c.store.SetCached(ctx, key, state, deviceStateTTL); err != nil {
		c.logger.Warn("failed to cache device state", "err", err)
	}
	return &state, nil
}

type setAtaRequest struct {
	DeviceID          int      `json:"DeviceID"`
	EffectiveFlags    int      `json:"EffectiveFlags"`
	Power             bool     `json:"Power"`
	OperationMode     *int     `json:"OperationMode,omitempty"`
	SetTemperature    *float64 `json:"SetTemperature,omitempty"`
	SetFanSpeed       *int     `json:"SetFanSpeed,omitempty"`
	VaneHorizontal    *int     `json:"VaneHorizontal,omitempty"`
	VaneVertical      *int     `json:"VaneVertical,omitempty"`
	HasPendingCommand bool     `json:"HasPendingCommand"`
}

// TurnOn powers the unit on with the given setpoint, mode, fan speed
// and, unless disabled, both vanes set to swing. Every field written is
// named in EffectiveFlags; nothing else changes on the unit.
func (c *Client) TurnOn(ctx context.Context, name string, setpoint float64, opts ...hvac.Option) bool {
	o := hvac.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if c.simMode {
		c.logger.Info("[sim] melcloud turn on", "device", name, "setpoint", setpoint, "mode", o.Mode)
		return true
	}

	err := func() error {
		device, err := c.device(ctx, name)
		if err != nil {
			return err
		}

		mode := modeToInt(o.Mode)
		fan := fanToInt(o.Fan)
		payload := setAtaRequest{
			DeviceID:          device.ID,
			EffectiveFlags:    flagPower | flagOperationMode | flagSetTemperature | flagFanSpeed,
			Power:             true,
			OperationMode:     &mode,
			SetTemperature:    &setpoint,
			SetFanSpeed:       &fan,
			HasPendingCommand: true,
		}
		if o.Vanes {
			vaneH, vaneV := vaneHorizontalSwing, vaneVerticalSwing
			payload.EffectiveFlags |= flagVaneHorizontal | flagVaneVertical
			payload.VaneHorizontal = &vaneH
			payload.VaneVertical = &vaneV
		}

		if err = c.call(ctx, http.MethodPost, "/Device/SetAta", payload, nil); err != nil {
			return err
		}
		c.invalidateState(ctx, device.ID)
		return nil
	}()
	if err != nil {
		c.logger.Error("failed to turn on melcloud device", "device", name, "kind", hvac.KindOf(err).String(), "err", err)
		return false
	}
	c.logger.Info("melcloud device turned on", "device", name, "setpoint", setpoint, "mode", o.Mode, "fan", o.Fan)
	return true
}

// TurnOff powers the unit off. Only the power bit is flagged, so the
// unit keeps its mode, setpoint and vane settings for the next start.
func (c *Client) TurnOff(ctx context.Context, name string) bool {
	if c.simMode {
		c.logger.Info("[sim] melcloud turn off", "device", name)
		return true
	}

	err := func() error {
		device, err := c.device(ctx, name)
		if err != nil {
			return err
		}
		payload := setAtaRequest{
			DeviceID:          device.ID,
			EffectiveFlags:    flagPower,
			Power:             false,
			HasPendingCommand: true,
		}
		if err = c.call(ctx, http.MethodPost, "/Device/SetAta", payload, nil); err != nil {
			return err
		}
		c.invalidateState(ctx, device.ID)
		return nil
	}()
	if err != nil {
		c.logger.Error("failed to turn off melcloud device", "device", name, "kind", hvac.KindOf(err).String(), "err", err)
		return false
	}
	c.logger.Info("melcloud device turned off", "device", name)
	return true
}

// invalidateState drops the cached state after a write so the next read
// does not serve the pre-command snapshot for up to a minute.
func (c *Client) invalidateState(ctx context.Context, deviceID int) {
	key := fmt.Sprintf("melcloud:device_state:%d", deviceID)
	if err := c.store.DeleteCached(ctx, key); err != nil {
		c.logger.Warn("failed to invalidate device state cache", "err", err)
	}
}

// GetTemperature returns the unit's current room temperature in Celsius.
func (c *Client) GetTemperature(ctx context.Context, name string) (float64, bool) {
	if c.simMode {
		return 20.0, true
	}

	state, err := c.GetDeviceState(ctx, name)
	if err != nil {
		c.logger.Error("failed to get melcloud temperature", "device", name, "kind", hvac.KindOf(err).String(), "err", err)
		return 0, false
	}
	if state.RoomTemperature == nil {
		return 0, false
	}
	return *state.RoomTemperature, true
}
