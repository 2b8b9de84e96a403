//go:build rp2040 || rp2350

package platform

import (
	"machine"

	"sensornode-go/services/hal"
)

type boardPin struct {
	pin machine.Pin
}

func (p boardPin) ConfigureInput(pull hal.Pull) error {
	mode := machine.PinInput
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	}
	p.pin.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (p boardPin) ConfigureOutput(initial bool) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(initial)
	return nil
}

func (p boardPin) Set(level bool) { p.pin.Set(level) }
func (p boardPin) Get() bool      { return p.pin.Get() }
func (p boardPin) Number() int    { return int(p.pin) }

type boardPins struct{}

func (boardPins) ByNumber(n int) (hal.GPIOPin, bool) {
	if n < 0 || n > 29 {
		return nil, false
	}
	return boardPin{pin: machine.Pin(n)}, true
}

// boardMeters currently exposes no buses.
// TODO: bind a PZEM-004T driver on uart1 once a vendor package is picked.
type boardMeters struct{}

func (boardMeters) ByID(string) (hal.PowerMeter, bool) { return nil, false }

func DefaultPins() hal.PinFactory     { return boardPins{} }
func DefaultMeters() hal.MeterFactory { return boardMeters{} }
