// sensors/haptic.go
package sensors

import (
	"context"

	"wearcode-go/drivers/drv2605"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
	"wearcode-go/types"
)

// HapticConfig doubles as the command payload: reconfiguring with a
// non-zero Effect fires that ROM effect, a non-zero Amplitude drives the
// motor in real-time mode, and zeros silence it.
type HapticConfig struct {
	Library   uint8 `json:"library"` // ROM effect library, 1..6
	Effect    uint8 `json:"effect"`  // ROM effect to fire, 0 = none
	Amplitude uint8 `json:"amplitude"`
}

type hapticDriver struct {
	dev *drv2605.Device
	lib uint8
}

func (d *hapticDriver) Init() error {
	d.lib = 0
	return d.dev.Init()
}

func (d *hapticDriver) Configure(cfg HapticConfig) error {
	if cfg.Library != d.lib {
		if err := d.dev.SelectLibrary(cfg.Library); err != nil {
			return err
		}
		d.lib = cfg.Library
	}
	if cfg.Effect != 0 {
		return d.dev.PlayEffect(cfg.Effect)
	}
	return d.dev.SetRealtime(cfg.Amplitude)
}

// Sample is never scheduled: the kind has no interval and no notifier.
func (d *hapticDriver) Sample() (any, error) { return nil, nil }

func (d *hapticDriver) Shutdown() error { return d.dev.Standby() }

// NewHaptic supervises the DRV2605. The worker exists only to hold the bus
// handle and serve reconfigure commands; it publishes no frames.
func NewHaptic(ctx context.Context, d Deps) *stream.Supervisor[HapticConfig] {
	return stream.New(ctx, d.Conn, d.Store, d.Pool, stream.Options[HapticConfig]{
		Kind:    types.KindHaptic,
		Tier:    spawn.TierMedium,
		Policy:  stream.StartReconfigure,
		Default: HapticConfig{Library: 1},
		Open: func() (stream.Driver[HapticConfig], func(), error) {
			i2c, release, err := acquireI2C(d.Board)
			if err != nil {
				return nil, nil, err
			}
			return &hapticDriver{dev: drv2605.New(i2c)}, release, nil
		},
	})
}
