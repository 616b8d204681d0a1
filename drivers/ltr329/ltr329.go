// Package ltr329 drives the LTR-329 ambient-light sensor.
package ltr329

import (
	"errors"

	"tinygo.org/x/drivers"
)

const Address = 0x29

// Registers.
const (
	regALSContr    = 0x80
	regALSMeasRate = 0x85
	regPartID      = 0x86
	regALSData     = 0x88 // CH1 low .. CH0 high, 4 bytes
	regALSStatus   = 0x8C
)

const (
	partID        = 0xA0
	ctrlActive    = 0x01
	ctrlStandby   = 0x00
	statusNewData = 0x04
)

var (
	ErrBadID    = errors.New("ltr329: unexpected part id")
	ErrNotReady = errors.New("ltr329: no new data")
)

// Sample holds both photodiode channels; CH0 is visible+IR, CH1 is IR.
type Sample struct {
	Ch0 uint16
	Ch1 uint16
}

// Device wraps an I2C connection to an LTR-329.
type Device struct {
	bus     drivers.I2C
	Address uint16

	buf [4]byte
}

func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Init probes the part and leaves it in standby until configured.
func (d *Device) Init() error {
	id, err := d.readReg(regPartID)
	if err != nil {
		return err
	}
	if id&0xF0 != partID {
		return ErrBadID
	}
	return d.writeReg(regALSContr, ctrlStandby)
}

// Configure sets gain (0..3 maps to 1x..8x) and measurement-rate code,
// then activates the sensor.
func (d *Device) Configure(gain, rate uint8) error {
	if gain > 3 {
		gain = 3
	}
	if rate > 5 {
		rate = 5
	}
	if err := d.writeReg(regALSMeasRate, rate); err != nil {
		return err
	}
	return d.writeReg(regALSContr, gain<<2|ctrlActive)
}

// Read returns the latest channels, or ErrNotReady when no fresh
// conversion has landed since the last read.
func (d *Device) Read() (Sample, error) {
	st, err := d.readReg(regALSStatus)
	if err != nil {
		return Sample{}, err
	}
	if st&statusNewData == 0 {
		return Sample{}, ErrNotReady
	}
	if err := d.bus.Tx(d.Address, []byte{regALSData}, d.buf[:]); err != nil {
		return Sample{}, err
	}
	return Sample{
		Ch1: uint16(d.buf[1])<<8 | uint16(d.buf[0]),
		Ch0: uint16(d.buf[3])<<8 | uint16(d.buf[2]),
	}, nil
}

// Standby deactivates measurements.
func (d *Device) Standby() error {
	return d.writeReg(regALSContr, ctrlStandby)
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
