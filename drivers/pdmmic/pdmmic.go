// Package pdmmic captures audio blocks from a PDM microphone.
//
// The PDM peripheral itself is platform-owned (PIO on RP2, ALSA or a
// simulator on hosts); the driver consumes decimated PCM through the
// Source interface and applies digital gain.
package pdmmic

import (
	"errors"
)

// Source delivers decimated PCM samples. Implemented by platform code.
type Source interface {
	// Start opens the capture path at the given sample rate.
	Start(sampleRateHz uint32) error
	// ReadPCM fills dst, returning the number of samples delivered.
	ReadPCM(dst []int16) (int, error)
	// Stop closes the capture path.
	Stop() error
}

var (
	ErrNoSource = errors.New("pdmmic: no capture source")
	ErrStopped  = errors.New("pdmmic: capture stopped")
)

// Device is one microphone capture channel.
type Device struct {
	src Source

	rateHz  uint32
	gainQ8  int32 // fixed-point gain, 256 = unity
	running bool
	block   [256]int16
}

func New(src Source) *Device {
	return &Device{src: src, gainQ8: 256}
}

// Init verifies the capture path exists. The source is opened lazily by
// Configure, which knows the sample rate.
func (d *Device) Init() error {
	if d.src == nil {
		return ErrNoSource
	}
	return nil
}

// Configure (re)opens the source at rateHz with gain in deci-dB steps
// folded into a fixed-point multiplier.
func (d *Device) Configure(rateHz uint32, gainQ8 int32) error {
	if rateHz == 0 {
		rateHz = 16000
	}
	if gainQ8 <= 0 {
		gainQ8 = 256
	}
	if d.running {
		if err := d.src.Stop(); err != nil {
			return err
		}
		d.running = false
	}
	if err := d.src.Start(rateHz); err != nil {
		return err
	}
	d.rateHz = rateHz
	d.gainQ8 = gainQ8
	d.running = true
	return nil
}

// ReadBlock captures one PCM block with gain applied. The returned slice
// is valid until the next call.
func (d *Device) ReadBlock() ([]int16, error) {
	if !d.running {
		return nil, ErrStopped
	}
	n, err := d.src.ReadPCM(d.block[:])
	if err != nil {
		return nil, err
	}
	if d.gainQ8 != 256 {
		for i := 0; i < n; i++ {
			v := int32(d.block[i]) * d.gainQ8 >> 8
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			d.block[i] = int16(v)
		}
	}
	return d.block[:n], nil
}

// Shutdown stops capture.
func (d *Device) Shutdown() error {
	if !d.running {
		return nil
	}
	d.running = false
	return d.src.Stop()
}
