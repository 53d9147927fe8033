// Package hvac defines the capability contract shared by all device
// clients, plus the error classification their retry policies run on.
package hvac

import "context"

// Device is implemented by every HVAC provider client. The methods never
// return an error: any failure (lookup miss, transport, auth, provider
// error) is logged by the client and surfaced as false / not-ok, so
// orchestration code can fan a command out across devices without one
// failure aborting the batch.
type Device interface {
	TurnOn(ctx context.Context, name string, setpoint float64, opts ...Option) bool
	TurnOff(ctx context.Context, name string) bool
	GetTemperature(ctx context.Context, name string) (float64, bool)
}

// Options carries device-specific settings for TurnOn. Clients read the
// fields they understand and ignore the rest.
type Options struct {
	Minutes int    // radiator: overlay duration
	Mode    string // ac: heat, cool, dry, fan, auto
	Fan     string // ac: "auto" or "1".."5"
	Vanes   bool   // ac: enable vane control (disable for ducted units)
}

type Option func(*Options)

func DefaultOptions() Options {
	return Options{Minutes: 60, Mode: "heat", Fan: "auto", Vanes: true}
}

// WithDuration sets the overlay duration in minutes.
func WithDuration(minutes int) Option {
	return func(o *Options) { o.Minutes = minutes }
}

// WithMode sets the AC operation mode.
func WithMode(mode string) Option {
	return func(o *Options) { o.Mode = mode }
}

// WithFan sets the AC fan speed: "auto" or an explicit speed "1".."5".
func WithFan(fan string) Option {
	return func(o *Options) { o.Fan = fan }
}

// WithVanes enables or disables vane control.
func WithVanes(enabled bool) Option {
	return func(o *Options) { o.Vanes = enabled }
}
