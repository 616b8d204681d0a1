// sensors/light.go
package sensors

import (
	"context"
	"errors"
	"time"

	"wearcode-go/drivers/ltr329"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
	"wearcode-go/types"
	"wearcode-go/x/timex"
)

// LightConfig programs the ambient light sensor.
type LightConfig struct {
	SampleHz uint32 `json:"sample_hz"`
	GainCode uint8  `json:"gain_code"`
	RateCode uint8  `json:"rate_code"` // integration/measurement rate code
}

// LightSample carries both photodiode channels; lux conversion is a
// consumer concern.
type LightSample struct {
	Ch0 uint16 `json:"ch0"` // visible + IR
	Ch1 uint16 `json:"ch1"` // IR
}

type lightDriver struct {
	dev *ltr329.Device
}

func (d *lightDriver) Init() error { return d.dev.Init() }

func (d *lightDriver) Configure(cfg LightConfig) error {
	return d.dev.Configure(cfg.GainCode, cfg.RateCode)
}

func (d *lightDriver) Sample() (any, error) {
	s, err := d.dev.Read()
	if errors.Is(err, ltr329.ErrNotReady) {
		// Integration still in progress; skip this cycle.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return LightSample{Ch0: s.Ch0, Ch1: s.Ch1}, nil
}

func (d *lightDriver) Shutdown() error { return d.dev.Standby() }

// NewLight supervises the LTR-329 at a low duty cycle.
func NewLight(ctx context.Context, d Deps) *stream.Supervisor[LightConfig] {
	return stream.New(ctx, d.Conn, d.Store, d.Pool, stream.Options[LightConfig]{
		Kind:    types.KindLight,
		Tier:    spawn.TierLow,
		Policy:  stream.StartIgnore,
		Default: LightConfig{SampleHz: 2, GainCode: 0, RateCode: 0x03},
		Interval: func(cfg LightConfig) time.Duration {
			return timex.PeriodFromHz(cfg.SampleHz)
		},
		Open: func() (stream.Driver[LightConfig], func(), error) {
			i2c, release, err := acquireI2C(d.Board)
			if err != nil {
				return nil, nil, err
			}
			return &lightDriver{dev: ltr329.New(i2c)}, release, nil
		},
	})
}
