// Package ads1299 provides a thin driver for the ADS1299 8-channel EEG
// analog front-end behind an I2C bridge.
//
// The driver covers the sequences the streaming core needs: probe, basic
// rate/gain configuration, conversion start/stop, frame reads, and
// standby. Full register programming stays with the datasheet.
package ads1299

import (
	"errors"

	"tinygo.org/x/drivers"
)

// Default bridge address.
const Address = 0x40

// Registers.
const (
	regID      = 0x00
	regConfig1 = 0x01
	regConfig2 = 0x02
	regConfig3 = 0x03
	regCh1Set  = 0x05
)

// Opcodes.
const (
	cmdWakeup  = 0x02
	cmdStandby = 0x04
	cmdReset   = 0x06
	cmdStart   = 0x08
	cmdStop    = 0x0A
	cmdRData   = 0x12
	cmdSDataC  = 0x11
)

const chipID = 0x3E

// FrameSize is 3 status bytes plus 8 channels of 24-bit samples.
const FrameSize = 27

var (
	ErrBadID    = errors.New("ads1299: unexpected chip id")
	ErrProtocol = errors.New("ads1299: protocol error")
)

// Frame is one conversion result across all channels.
type Frame struct {
	Status   uint32
	Channels [8]int32 // sign-extended 24-bit counts
}

// Device wraps an I2C connection to an ADS1299.
type Device struct {
	bus     drivers.I2C
	Address uint16

	buf [FrameSize + 1]byte
}

// New creates the device object without touching the hardware.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Init resets the front-end, halts continuous output, and probes the ID.
func (d *Device) Init() error {
	if err := d.command(cmdReset); err != nil {
		return err
	}
	if err := d.command(cmdSDataC); err != nil {
		return err
	}
	id, err := d.readReg(regID)
	if err != nil {
		return err
	}
	if id&0x1F != chipID&0x1F {
		return ErrBadID
	}
	return nil
}

// SetRate programs the output data rate divider (CONFIG1 DR bits, 0..6:
// 16 kSPS down to 250 SPS).
func (d *Device) SetRate(div uint8) error {
	if div > 6 {
		div = 6
	}
	return d.writeReg(regConfig1, 0x90|div)
}

// SetGain applies one PGA gain code (0..6 for 1x..24x) to all channels.
func (d *Device) SetGain(code uint8) error {
	if code > 6 {
		code = 6
	}
	for ch := uint16(0); ch < 8; ch++ {
		if err := d.writeReg(uint8(regCh1Set+ch), code<<4); err != nil {
			return err
		}
	}
	return nil
}

// Start begins conversions.
func (d *Device) Start() error { return d.command(cmdStart) }

// Stop halts conversions.
func (d *Device) Stop() error { return d.command(cmdStop) }

// Standby drops the front-end into its low-power state.
func (d *Device) Standby() error {
	if err := d.command(cmdStop); err != nil {
		return err
	}
	return d.command(cmdStandby)
}

// ReadFrame fetches one full conversion frame.
func (d *Device) ReadFrame() (Frame, error) {
	d.buf[0] = cmdRData
	if err := d.bus.Tx(d.Address, d.buf[:1], d.buf[1:1+FrameSize]); err != nil {
		return Frame{}, err
	}
	raw := d.buf[1 : 1+FrameSize]

	var f Frame
	f.Status = uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
	for ch := 0; ch < 8; ch++ {
		o := 3 + ch*3
		v := int32(raw[o])<<16 | int32(raw[o+1])<<8 | int32(raw[o+2])
		if v&0x800000 != 0 {
			v -= 1 << 24 // sign-extend 24-bit
		}
		f.Channels[ch] = v
	}
	return f, nil
}

func (d *Device) command(op uint8) error {
	return d.bus.Tx(d.Address, []byte{op}, nil)
}

func (d *Device) writeReg(reg, val uint8) error {
	return d.bus.Tx(d.Address, []byte{0x40 | reg, 0x00, val}, nil)
}

func (d *Device) readReg(reg uint8) (uint8, error) {
	var out [1]byte
	if err := d.bus.Tx(d.Address, []byte{0x20 | reg, 0x00}, out[:]); err != nil {
		return 0, err
	}
	return out[0], nil
}
