package rooms

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"hvac-bridge/internal/hvac"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	const registry = `
rooms:
  - name: "Living Room"
    tado_zone: "Living Room"
    ac_devices: [ "Living" ]
  - name: "Master’s Bedroom"
    ac_devices: [ "Master bedroom" ]
  - name: "Kitchen"
    tado_zone: "Kitchen"
`
	rooms, err := Load(strings.NewReader(registry))
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, Room{Name: "Living Room", TadoZone: "Living Room", ACDevices: []string{"Living"}}, rooms[0])
	// names are normalized on load
	assert.Equal(t, "Master's Bedroom", rooms[1].Name)
	assert.Empty(t, rooms[1].TadoZone)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		registry string
		err      string
	}{
		{
			name:     "not yaml",
			registry: `{{{`,
			err:      "rooms registry",
		},
		{
			name:     "missing name",
			registry: "rooms:\n  - tado_zone: Kitchen\n",
			err:      "has no name",
		},
		{
			name:     "duplicate room",
			registry: "rooms:\n  - {name: Kitchen, tado_zone: Kitchen}\n  - {name: Kitchen, tado_zone: Kitchen}\n",
			err:      `duplicate room "Kitchen"`,
		},
		{
			name:     "empty room",
			registry: "rooms:\n  - {name: Kitchen}\n",
			err:      "no zone and no devices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.registry))
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

// fakeDevice records calls and fails for the names listed in failing.
type fakeDevice struct {
	temps   map[string]float64
	failing map[string]bool
	on      []string
	off     []string
}

func (f *fakeDevice) TurnOn(_ context.Context, name string, _ float64, _ ...hvac.Option) bool {
	f.on = append(f.on, name)
	return !f.failing[name]
}

func (f *fakeDevice) TurnOff(_ context.Context, name string) bool {
	f.off = append(f.off, name)
	return !f.failing[name]
}

func (f *fakeDevice) GetTemperature(_ context.Context, name string) (float64, bool) {
	temp, ok := f.temps[name]
	return temp, ok
}

var _ hvac.Device = &fakeDevice{}

var testRooms = []Room{
	{Name: "Living Room", TadoZone: "Living Room", ACDevices: []string{"Living"}},
	{Name: "Bedroom", ACDevices: []string{"Master bedroom"}},
	{Name: "Kitchen", TadoZone: "Kitchen"},
}

func TestController_TurnOnTurnOff(t *testing.T) {
	ctx := context.Background()
	radiator := &fakeDevice{}
	aircon := &fakeDevice{}
	c := New(testRooms, radiator, aircon, slog.Default())

	assert.True(t, c.TurnOn(ctx, "Living Room", 21.0))
	assert.Equal(t, []string{"Living Room"}, radiator.on)
	assert.Equal(t, []string{"Living"}, aircon.on)

	assert.True(t, c.TurnOff(ctx, "Kitchen"))
	assert.Equal(t, []string{"Kitchen"}, radiator.off)
	assert.Empty(t, aircon.off)

	assert.False(t, c.TurnOn(ctx, "Pantry", 21.0))
	assert.False(t, c.TurnOff(ctx, "Pantry"))
}

func TestController_PartialFailure(t *testing.T) {
	ctx := context.Background()
	radiator := &fakeDevice{failing: map[string]bool{"Living Room": true}}
	aircon := &fakeDevice{}
	c := New(testRooms, radiator, aircon, slog.Default())

	// the failing radiator does not stop the AC from being commanded
	assert.False(t, c.TurnOn(ctx, "Living Room", 21.0))
	assert.Equal(t, []string{"Living"}, aircon.on)

	assert.False(t, c.TurnOff(ctx, "Living Room"))
	assert.Equal(t, []string{"Living"}, aircon.off)
}

func TestController_GetStatus(t *testing.T) {
	ctx := context.Background()
	radiator := &fakeDevice{temps: map[string]float64{"Living Room": 19.5}}
	aircon := &fakeDevice{temps: map[string]float64{"Living": 20.5}}
	c := New(testRooms, radiator, aircon, slog.Default())

	statuses := c.GetStatus(ctx)
	require.Len(t, statuses, 3)

	assert.Equal(t, "Living Room", statuses[0].Name)
	require.NotNil(t, statuses[0].Radiator)
	assert.Equal(t, 19.5, *statuses[0].Radiator)
	require.NotNil(t, statuses[0].AirCon["Living"])
	assert.Equal(t, 20.5, *statuses[0].AirCon["Living"])

	// unreadable sources report as nil, not as missing rooms
	assert.Nil(t, statuses[1].AirCon["Master bedroom"])
	assert.Equal(t, "Kitchen", statuses[2].Name)
	assert.Nil(t, statuses[2].Radiator)
}
