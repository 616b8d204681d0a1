// bridge/transport_uart.go
//
// Stream-framed uplink over a UART. The dialler is injected by platform
// code; the framing here is a plain length-prefixed record so the far side
// needs no MQTT stack.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// UARTDial is injected by platform code (dial_rp2.go on device, a pty or
// pipe in tests). It opens and returns the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg UARTConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	return &uartTransport{cfg: *cfg.UART}, nil
}

func (u *uartTransport) Open(ctx context.Context) (Link, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	rwc, err := UARTDial(ctx, u.cfg)
	if err != nil {
		return nil, err
	}
	return &uartLink{rwc: rwc}, nil
}

func (u *uartTransport) String() string { return "uart" }

// Frame types on the wire.
const (
	framePing  byte = 0x01
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

type uartLink struct {
	rwc io.ReadWriteCloser
}

// Send writes one publish frame: type byte, 2-byte big-endian length, body.
// The topic travels inside the JSON record, not the header.
func (l *uartLink) Send(topic string, payload []byte) error {
	return l.writeFrame(framePub, payload)
}

func (l *uartLink) Ping() error { return l.writeFrame(framePing, nil) }

func (l *uartLink) Close() error {
	_ = l.writeFrame(frameClose, nil)
	return l.rwc.Close()
}

func (l *uartLink) writeFrame(typ byte, body []byte) error {
	if len(body) > 0xFFFF {
		return fmt.Errorf("bridge: frame too large: %d", len(body))
	}
	hdr := []byte{typ, byte(len(body) >> 8), byte(len(body))}
	if _, err := l.rwc.Write(hdr); err != nil {
		return err
	}
	if len(body) > 0 {
		_, err := l.rwc.Write(body)
		return err
	}
	return nil
}
