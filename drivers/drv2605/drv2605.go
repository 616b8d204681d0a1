// Package drv2605 drives the DRV2605 haptic motor controller.
package drv2605

import (
	"errors"

	"tinygo.org/x/drivers"
)

const Address = 0x5A

// Registers.
const (
	regStatus   = 0x00
	regMode     = 0x01
	regRTPInput = 0x02
	regLibrary  = 0x03
	regWaveSeq1 = 0x04
	regGo       = 0x0C
)

// Modes.
const (
	modeInternalTrigger = 0x00
	modeRTP             = 0x05
	modeStandby         = 0x40
)

var ErrBadStatus = errors.New("drv2605: bad status")

// Device wraps an I2C connection to a DRV2605.
type Device struct {
	bus     drivers.I2C
	Address uint16
}

func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Init wakes the controller and checks it responds sanely.
func (d *Device) Init() error {
	st, err := d.readReg(regStatus)
	if err != nil {
		return err
	}
	// DEVICE_ID bits 5..7; 0 or 7 mean a floating bus.
	if id := st >> 5; id == 0 || id == 7 {
		return ErrBadStatus
	}
	return d.writeReg(regMode, modeInternalTrigger)
}

// SelectLibrary picks a ROM effect library (1..6).
func (d *Device) SelectLibrary(lib uint8) error {
	if lib < 1 || lib > 6 {
		lib = 1
	}
	return d.writeReg(regLibrary, lib)
}

// PlayEffect loads a single ROM effect into the sequencer and fires it.
func (d *Device) PlayEffect(effect uint8) error {
	if err := d.writeReg(regMode, modeInternalTrigger); err != nil {
		return err
	}
	if err := d.writeReg(regWaveSeq1, effect); err != nil {
		return err
	}
	if err := d.writeReg(regWaveSeq1+1, 0); err != nil { // terminate sequence
		return err
	}
	return d.writeReg(regGo, 1)
}

// SetRealtime drives the motor directly with an amplitude in RTP mode.
func (d *Device) SetRealtime(amplitude uint8) error {
	if err := d.writeReg(regMode, modeRTP); err != nil {
		return err
	}
	return d.writeReg(regRTPInput, amplitude)
}

// Busy reports whether a sequenced effect is still playing.
func (d *Device) Busy() (bool, error) {
	g, err := d.readReg(regGo)
	if err != nil {
		return false, err
	}
	return g&1 != 0, nil
}

// Standby stops output and enters the low-power state.
func (d *Device) Standby() error {
	if err := d.writeReg(regRTPInput, 0); err != nil {
		return err
	}
	return d.writeReg(regMode, modeStandby)
}

func (d *Device) writeReg(reg, val uint8) error {
	return d.bus.Tx(d.Address, []byte{reg, val}, nil)
}

func (d *Device) readReg(reg uint8) (uint8, error) {
	var out [1]byte
	if err := d.bus.Tx(d.Address, []byte{reg}, out[:]); err != nil {
		return 0, err
	}
	return out[0], nil
}
