// sensors/imu.go
package sensors

import (
	"context"
	"time"

	"wearcode-go/drivers/icm42688"
	"wearcode-go/services/stream"
	"wearcode-go/spawn"
	"wearcode-go/types"
	"wearcode-go/x/timex"
)

// IMUConfig programs the motion unit and the polling rate.
type IMUConfig struct {
	SampleHz uint32 `json:"sample_hz"`
	ODRCode  uint8  `json:"odr_code"` // accel/gyro ODR register code
}

// IMUSample is one published frame payload, raw sensor counts.
type IMUSample struct {
	AX int16 `json:"ax"`
	AY int16 `json:"ay"`
	AZ int16 `json:"az"`
	GX int16 `json:"gx"`
	GY int16 `json:"gy"`
	GZ int16 `json:"gz"`
}

type imuDriver struct {
	dev *icm42688.Device
}

func (d *imuDriver) Init() error { return d.dev.Init() }

func (d *imuDriver) Configure(cfg IMUConfig) error {
	return d.dev.SetODR(cfg.ODRCode)
}

func (d *imuDriver) Sample() (any, error) {
	s, err := d.dev.Read()
	if err != nil {
		return nil, err
	}
	return IMUSample{AX: s.AX, AY: s.AY, AZ: s.AZ, GX: s.GX, GY: s.GY, GZ: s.GZ}, nil
}

func (d *imuDriver) Shutdown() error { return d.dev.Standby() }

// NewIMU supervises the ICM-42688. ODR changes are in-place register writes.
func NewIMU(ctx context.Context, d Deps) *stream.Supervisor[IMUConfig] {
	return stream.New(ctx, d.Conn, d.Store, d.Pool, stream.Options[IMUConfig]{
		Kind:    types.KindIMU,
		Tier:    spawn.TierHigh,
		Policy:  stream.StartReconfigure,
		Default: IMUConfig{SampleHz: 100, ODRCode: 0x08},
		Interval: func(cfg IMUConfig) time.Duration {
			return timex.PeriodFromHz(cfg.SampleHz)
		},
		Open: func() (stream.Driver[IMUConfig], func(), error) {
			i2c, release, err := acquireI2C(d.Board)
			if err != nil {
				return nil, nil, err
			}
			return &imuDriver{dev: icm42688.New(i2c)}, release, nil
		},
	})
}
