// platform/board_host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"wearcode-go/sharedbus"
)

var hostInitOnce sync.Once

// NewBoard wires a Linux host board. The periph bus is opened lazily by the
// factory and handed back to the kernel on teardown, so /dev/i2c-* stays
// unclaimed while nothing streams.
func NewBoard() *Board {
	res := I2CResources{Port: "/dev/i2c-1", Hz: 400_000}
	mgr := sharedbus.New[I2CResources, drivers.I2C](sharedbus.FactoryFunc[I2CResources, drivers.I2C](createHostI2C), res)
	return &Board{Name: "host", I2C: mgr, Mic: NewSimMic()}
}

func createHostI2C(res I2CResources) (drivers.I2C, sharedbus.Destroy[I2CResources], error) {
	var initErr error
	hostInitOnce.Do(func() { _, initErr = host.Init() })
	if initErr != nil {
		return nil, nil, initErr
	}
	b, err := i2creg.Open(res.Port)
	if err != nil {
		return nil, nil, err
	}
	// periph's i2c.Bus has the same Tx shape as drivers.I2C, so the opened
	// bus is usable by the TinyGo-style chip drivers directly.
	destroy := func() I2CResources {
		if err := b.Close(); err != nil {
			println("Warn: platform: closing", res.Port, "failed:", err.Error())
		}
		return res
	}
	return b, destroy, nil
}
