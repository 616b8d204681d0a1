// sensors/eeg.go
package sensors

import (
	"context"
	"time"

	"wearcode-go/drivers/ads1299"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
	"wearcode-go/types"
	"wearcode-go/x/timex"
)

// EEGConfig programs the analog front-end and the polling rate.
type EEGConfig struct {
	SampleHz uint32 `json:"sample_hz"` // polling rate for frame reads
	RateDiv  uint8  `json:"rate_div"`  // CONFIG1 DR code, 0..6
	GainCode uint8  `json:"gain_code"` // PGA code, 0..6 for 1x..24x
}

// EEGSample is one published frame payload.
type EEGSample struct {
	Status   uint32   `json:"status"`
	Channels [8]int32 `json:"channels"`
}

type eegDriver struct {
	dev *ads1299.Device
}

func (d *eegDriver) Init() error { return d.dev.Init() }

func (d *eegDriver) Configure(cfg EEGConfig) error {
	if err := d.dev.SetRate(cfg.RateDiv); err != nil {
		return err
	}
	if err := d.dev.SetGain(cfg.GainCode); err != nil {
		return err
	}
	return d.dev.Start()
}

func (d *eegDriver) Sample() (any, error) {
	f, err := d.dev.ReadFrame()
	if err != nil {
		return nil, err
	}
	return EEGSample{Status: f.Status, Channels: f.Channels}, nil
}

func (d *eegDriver) Shutdown() error { return d.dev.Standby() }

// NewEEG supervises the ADS1299 front-end. Rate and gain changes apply to
// the live device, so a second start folds into reconfiguration.
func NewEEG(ctx context.Context, d Deps) *stream.Supervisor[EEGConfig] {
	return stream.New(ctx, d.Conn, d.Store, d.Pool, stream.Options[EEGConfig]{
		Kind:    types.KindEEG,
		Tier:    spawn.TierHigh,
		Policy:  stream.StartReconfigure,
		Default: EEGConfig{SampleHz: 250, RateDiv: 6, GainCode: 4},
		Interval: func(cfg EEGConfig) time.Duration {
			return timex.PeriodFromHz(cfg.SampleHz)
		},
		Open: func() (stream.Driver[EEGConfig], func(), error) {
			i2c, release, err := acquireI2C(d.Board)
			if err != nil {
				return nil, nil, err
			}
			return &eegDriver{dev: ads1299.New(i2c)}, release, nil
		},
	})
}
