// bridge/dial_rp2.go
//go:build rp2040 || rp2350

package bridge

import (
	"context"
	"errors"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

func init() {
	UARTDial = dialRP2UART
}

func dialRP2UART(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch u.Port {
	case "", "uart0":
		hw = uartx.UART0
	case "uart1":
		hw = uartx.UART1
	default:
		return nil, errors.New("bridge: unknown uart port " + u.Port)
	}
	baud := u.Baud
	if baud == 0 {
		baud = 115200
	}
	err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	})
	if err != nil {
		return nil, err
	}
	return &rp2Port{ctx: ctx, u: hw}, nil
}

// rp2Port adapts uartx to io.ReadWriteCloser. Close leaves the hardware
// configured; the next dial reprograms it.
type rp2Port struct {
	ctx context.Context
	u   *uartx.UART
}

func (p *rp2Port) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *rp2Port) Read(b []byte) (int, error) {
	return p.u.RecvSomeContext(p.ctx, b)
}

func (p *rp2Port) Close() error { return nil }
