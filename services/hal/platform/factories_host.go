//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"sensornode-go/services/hal"
)

// FakePin is a host-side stand-in for a GPIO pin. Output level is readable
// back, input reads return the pulled level.
type FakePin struct {
	mu     sync.Mutex
	n      int
	output bool
	level  bool
	pull   hal.Pull
}

func (p *FakePin) ConfigureInput(pull hal.Pull) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = false
	p.pull = pull
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = true
	p.level = initial
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.output {
		return p.pull == hal.PullUp
	}
	return p.level
}

func (p *FakePin) Number() int { return p.n }

// HostPins hands out FakePins on demand and remembers them, so a test or a
// host demo can inspect what the HAL drove.
type HostPins struct {
	mu   sync.Mutex
	pins map[int]*FakePin
}

func NewHostPins() *HostPins {
	return &HostPins{pins: map[int]*FakePin{}}
}

func (f *HostPins) ByNumber(n int) (hal.GPIOPin, bool) {
	if n < 0 || n > 29 {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	if !ok {
		p = &FakePin{n: n}
		f.pins[n] = p
	}
	return p, true
}

// Pin returns the fake previously handed out for n, for inspection.
func (f *HostPins) Pin(n int) (*FakePin, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pins[n]
	return p, ok
}

// NoMeters is the host meter factory: no power-monitor hardware exists off
// target.
type NoMeters struct{}

func (NoMeters) ByID(string) (hal.PowerMeter, bool) { return nil, false }

func DefaultPins() hal.PinFactory     { return NewHostPins() }
func DefaultMeters() hal.MeterFactory { return NoMeters{} }
