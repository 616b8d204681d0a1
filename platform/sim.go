// platform/sim.go
//
// Simulated board: an in-memory I2C controller with fake peripherals at the
// real chip addresses, plus a synthetic PDM source. Used by cmd/host-sim and
// by tests that need a full stack without hardware.
package platform

import (
	"errors"
	"math"
	"sync"

	"tinygo.org/x/drivers"

	"wearcode-go/drivers/ads1299"
	"wearcode-go/drivers/drv2605"
	"wearcode-go/drivers/icm42688"
	"wearcode-go/drivers/ltr329"
	"wearcode-go/sharedbus"
)

var ErrNoDevice = errors.New("platform: no device at address")

// SimDevice is one fake peripheral on the simulated controller.
type SimDevice interface {
	Tx(w, r []byte) error
}

// SimBus routes I2C transactions to fake peripherals by address.
type SimBus struct {
	mu   sync.Mutex
	devs map[uint16]SimDevice
}

func NewSimBus() *SimBus {
	b := &SimBus{devs: make(map[uint16]SimDevice)}
	b.devs[ads1299.Address] = &simADS1299{}
	b.devs[icm42688.Address] = newRegDevice(map[uint8]uint8{0x75: 0x47})
	b.devs[ltr329.Address] = newRegDevice(map[uint8]uint8{
		0x86: 0xA0, // part id
		0x8C: 0x04, // ALS status: new data
		0x88: 0x21, 0x89: 0x01, 0x8A: 0x84, 0x8B: 0x03,
	})
	b.devs[drv2605.Address] = newRegDevice(map[uint8]uint8{0x00: 3 << 5})
	return b
}

func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	dev, ok := b.devs[addr]
	b.mu.Unlock()
	if !ok {
		return ErrNoDevice
	}
	return dev.Tx(w, r)
}

// Remove unplugs the fake peripheral at addr, making later transactions nack.
func (b *SimBus) Remove(addr uint16) {
	b.mu.Lock()
	delete(b.devs, addr)
	b.mu.Unlock()
}

// regDevice is a register-file peripheral: writes are [reg, val] pairs,
// reads start at the register in w[0] and stream sequentially.
type regDevice struct {
	mu   sync.Mutex
	regs map[uint8]uint8
}

func newRegDevice(regs map[uint8]uint8) *regDevice {
	return &regDevice{regs: regs}
}

func (d *regDevice) Tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(w) == 0 {
		return nil
	}
	if len(r) == 0 {
		for i := 0; i+1 < len(w); i += 2 {
			d.regs[w[i]] = w[i+1]
		}
		return nil
	}
	for i := range r {
		r[i] = d.regs[w[0]+uint8(i)]
	}
	return nil
}

// simADS1299 speaks the bridge's opcode protocol and synthesizes a slow
// sine per channel, phase-shifted so channels are distinguishable.
type simADS1299 struct {
	mu  sync.Mutex
	n   uint32
	cfg map[uint8]uint8
}

func (d *simADS1299) Tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg == nil {
		d.cfg = make(map[uint8]uint8)
	}
	if len(w) == 0 {
		return nil
	}
	op := w[0]
	switch {
	case op == 0x12: // RDATA
		d.fillFrame(r)
	case op&0xE0 == 0x20: // RREG
		for i := range r {
			if op&0x1F+uint8(i) == 0 {
				r[i] = 0x3E // chip id
			} else {
				r[i] = d.cfg[op&0x1F+uint8(i)]
			}
		}
	case op&0xE0 == 0x40: // WREG, single register form
		if len(w) >= 3 {
			d.cfg[op&0x1F] = w[2]
		}
	default:
		// Opcode commands (reset, start, stop, standby) have no payload.
	}
	return nil
}

func (d *simADS1299) fillFrame(r []byte) {
	if len(r) < ads1299.FrameSize {
		return
	}
	d.n++
	r[0], r[1], r[2] = 0xC0, 0x00, 0x00
	for ch := 0; ch < 8; ch++ {
		phase := float64(d.n)/50 + float64(ch)
		v := int32(math.Sin(phase) * 100_000)
		o := 3 + ch*3
		r[o] = byte(v >> 16)
		r[o+1] = byte(v >> 8)
		r[o+2] = byte(v)
	}
}

// NewSimBoard builds a board whose bus factory fails the first failCreates
// attempts before producing a working simulated controller. The sim bus is
// returned alongside so callers can unplug peripherals mid-run.
func NewSimBoard(failCreates int) (*Board, *SimBus) {
	sim := NewSimBus()
	fails := failCreates
	factory := sharedbus.FactoryFunc[I2CResources, drivers.I2C](
		func(res I2CResources) (drivers.I2C, sharedbus.Destroy[I2CResources], error) {
			if fails > 0 {
				fails--
				return nil, nil, errors.New("platform: simulated controller fault")
			}
			return sim, func() I2CResources { return res }, nil
		})
	mgr := sharedbus.New[I2CResources, drivers.I2C](factory, I2CResources{Port: "sim0", Hz: 400_000})
	return &Board{Name: "sim", I2C: mgr, Mic: NewSimMic()}, sim
}
