//go:build rp2040 || rp2350

package bridge

import (
	"context"
	"errors"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// On RP2 targets the bridge link runs over a hardware UART via uartx, whose
// receive path blocks on a channel instead of polling FIFO registers.

func init() {
	UARTDial = rp2UARTDial
}

func rp2UARTDial(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error) {
	hw, err := uartForPins(u.TxPin)
	if err != nil {
		return nil, err
	}
	baud := u.Baud
	if baud <= 0 {
		baud = 115200
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	return &uartxLink{ctx: ctx, u: hw}, nil
}

// uartForPins selects the UART block owning the given TX pin.
func uartForPins(tx int) (*uartx.UART, error) {
	switch tx {
	case 0, 12, 16, 28:
		return uartx.UART0, nil
	case 4, 8, 20, 24:
		return uartx.UART1, nil
	default:
		return nil, errors.New("no uart block for tx pin")
	}
}

type uartxLink struct {
	ctx context.Context
	u   *uartx.UART
}

func (l *uartxLink) Read(b []byte) (int, error) {
	return l.u.RecvSomeContext(l.ctx, b)
}

func (l *uartxLink) Write(b []byte) (int, error) {
	return l.u.Write(b)
}

func (l *uartxLink) Close() error { return nil }
