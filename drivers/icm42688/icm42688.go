// Package icm42688 drives the ICM-42688 6-axis IMU over I2C.
package icm42688

import (
	"errors"

	"tinygo.org/x/drivers"
)

// I2C address (AP_AD0 low).
const Address = 0x68

// Registers (bank 0).
const (
	regWhoAmI       = 0x75
	regPwrMgmt0     = 0x4E
	regGyroConfig0  = 0x4F
	regAccelConfig0 = 0x50
	regAccelDataX1  = 0x1F
)

const chipID = 0x47

// PWR_MGMT0: gyro and accel in low-noise mode.
const pwrLowNoise = 0x0F

var ErrBadID = errors.New("icm42688: unexpected who_am_i")

// Sample is one raw 6-axis reading.
type Sample struct {
	AX, AY, AZ int16 // accelerometer counts
	GX, GY, GZ int16 // gyroscope counts
}

// Device wraps an I2C connection to an ICM-42688.
type Device struct {
	bus     drivers.I2C
	Address uint16

	buf [12]byte
}

func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Init probes the chip and powers both sensors into low-noise mode.
func (d *Device) Init() error {
	id, err := d.readReg(regWhoAmI)
	if err != nil {
		return err
	}
	if id != chipID {
		return ErrBadID
	}
	return d.writeReg(regPwrMgmt0, pwrLowNoise)
}

// SetODR programs the shared output-data-rate code (0x01 fastest..0x0F
// slowest) for both sensors, keeping full-scale defaults.
func (d *Device) SetODR(code uint8) error {
	if code == 0 || code > 0x0F {
		code = 0x06 // 1 kHz
	}
	if err := d.writeReg(regGyroConfig0, code); err != nil {
		return err
	}
	return d.writeReg(regAccelConfig0, code)
}

// Read fetches one accel+gyro sample.
func (d *Device) Read() (Sample, error) {
	if err := d.bus.Tx(d.Address, []byte{regAccelDataX1}, d.buf[:]); err != nil {
		return Sample{}, err
	}
	b := d.buf
	return Sample{
		AX: int16(uint16(b[0])<<8 | uint16(b[1])),
		AY: int16(uint16(b[2])<<8 | uint16(b[3])),
		AZ: int16(uint16(b[4])<<8 | uint16(b[5])),
		GX: int16(uint16(b[6])<<8 | uint16(b[7])),
		GY: int16(uint16(b[8])<<8 | uint16(b[9])),
		GZ: int16(uint16(b[10])<<8 | uint16(b[11])),
	}, nil
}

// Standby powers both sensors off.
func (d *Device) Standby() error {
	return d.writeReg(regPwrMgmt0, 0x00)
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
