// sensors/mic.go
package sensors

import (
	"context"
	"time"

	"wearcode-go/drivers/pdmmic"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
	"wearcode-go/types"
)

// MicConfig programs the capture path. Rate changes require reopening the
// PDM clocking, so the kind restarts its device on reconfigure.
type MicConfig struct {
	SampleHz uint32 `json:"sample_hz"`
	GainQ8   int32  `json:"gain_q8"` // fixed-point gain, 256 = unity
}

// MicBlock is one published capture block.
type MicBlock struct {
	SampleHz uint32  `json:"sample_hz"`
	PCM      []int16 `json:"pcm"`
}

type micDriver struct {
	dev  *pdmmic.Device
	rate uint32
}

func (d *micDriver) Init() error { return d.dev.Init() }

func (d *micDriver) Configure(cfg MicConfig) error {
	d.rate = cfg.SampleHz
	return d.dev.Configure(cfg.SampleHz, cfg.GainQ8)
}

func (d *micDriver) Sample() (any, error) {
	pcm, err := d.dev.ReadBlock()
	if err != nil {
		return nil, err
	}
	// The device reuses its block buffer; frames outlive the call.
	out := make([]int16, len(pcm))
	copy(out, pcm)
	return MicBlock{SampleHz: d.rate, PCM: out}, nil
}

func (d *micDriver) Shutdown() error { return d.dev.Shutdown() }

// NewMic supervises the PDM microphone. The capture source lives on its own
// peripheral, so the worker never touches the shared I2C bus.
func NewMic(ctx context.Context, d Deps) *stream.Supervisor[MicConfig] {
	return stream.New(ctx, d.Conn, d.Store, d.Pool, stream.Options[MicConfig]{
		Kind:                 types.KindMic,
		Tier:                 spawn.TierHigh,
		Policy:               stream.StartIgnore,
		RestartOnReconfigure: true,
		Default:              MicConfig{SampleHz: 16000, GainQ8: 256},
		Interval: func(cfg MicConfig) time.Duration {
			hz := cfg.SampleHz
			if hz == 0 {
				hz = 16000
			}
			// One 256-sample block per tick.
			return time.Duration(256) * time.Second / time.Duration(hz)
		},
		Open: func() (stream.Driver[MicConfig], func(), error) {
			return &micDriver{dev: pdmmic.New(d.Board.Mic)}, func() {}, nil
		},
	})
}
