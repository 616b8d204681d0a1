// platform/platform.go
//
// Board resource plans and bus factories per target. The shared I2C
// controller is owned by a sharedbus.Manager; everything else reaches it
// through handles.
package platform

import (
	"tinygo.org/x/drivers"

	"wearcode-go/drivers/pdmmic"
	"wearcode-go/sharedbus"
)

// I2CResources is the inert pin/peripheral claim for one I2C controller.
// Exactly one copy exists per controller: either here (bus down) or
// consumed into the live bus object.
type I2CResources struct {
	Port string // controller name: "i2c0" on MCU, "/dev/i2c-1" on hosts
	SDA  int
	SCL  int
	Hz   uint32
}

// I2CManager is the shared-bus manager instantiation every sensor kind
// acquires handles from.
type I2CManager = sharedbus.Manager[I2CResources, drivers.I2C]

// Board bundles the peripherals main wires at boot.
type Board struct {
	Name string
	I2C  *I2CManager
	Mic  pdmmic.Source
}
