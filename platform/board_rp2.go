// platform/board_rp2.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"tinygo.org/x/drivers"

	"wearcode-go/drivers/pdmmic"
	"wearcode-go/sharedbus"
)

// NewBoard wires the RP2 sensor bus. The controller is configured lazily by
// the factory, so a boot with no streaming sensor never touches the pins.
func NewBoard() *Board {
	res := I2CResources{Port: "i2c0", SDA: int(machine.I2C0_SDA_PIN), SCL: int(machine.I2C0_SCL_PIN), Hz: 400_000}
	mgr := sharedbus.New[I2CResources, drivers.I2C](sharedbus.FactoryFunc[I2CResources, drivers.I2C](createRP2I2C), res)
	return &Board{
		Name: "rp2",
		I2C:  mgr,
		// TODO: replace with a PIO PDM capture source once the mic daughter
		// board pinout is final.
		Mic: NewSimMic(),
	}
}

func createRP2I2C(res I2CResources) (drivers.I2C, sharedbus.Destroy[I2CResources], error) {
	b := machine.I2C0
	err := b.Configure(machine.I2CConfig{
		Frequency: res.Hz,
		SDA:       machine.Pin(res.SDA),
		SCL:       machine.Pin(res.SCL),
	})
	if err != nil {
		return nil, nil, err
	}
	destroy := func() I2CResources {
		// The RP2 port has no deconfigure; park the pins as inputs so the
		// rails can be gated without back-powering the peripherals.
		machine.Pin(res.SDA).Configure(machine.PinConfig{Mode: machine.PinInput})
		machine.Pin(res.SCL).Configure(machine.PinConfig{Mode: machine.PinInput})
		return res
	}
	return b, destroy, nil
}
