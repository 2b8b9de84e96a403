package hal_test

import (
	"testing"
	"time"

	"sensornode-go/bus"
	"sensornode-go/drivers/dht11/dhtsim"
	"sensornode-go/services/hal"
	"sensornode-go/types"
)

// fakePin is a plain in-memory GPIO pin.
type fakePin struct {
	n      int
	level  bool
	output bool
	pull   hal.Pull
}

func (p *fakePin) ConfigureInput(pull hal.Pull) error {
	p.output = false
	p.pull = pull
	return nil
}

func (p *fakePin) ConfigureOutput(initial bool) error {
	p.output = true
	p.level = initial
	return nil
}

func (p *fakePin) Set(level bool) { p.level = level }
func (p *fakePin) Get() bool      { return p.level }
func (p *fakePin) Number() int    { return p.n }

// simPin exposes a scripted single-wire line through the GPIO contract so the
// real sensor adaptor can run against it.
type simPin struct {
	n    int
	line *dhtsim.Line
}

func (p *simPin) ConfigureInput(hal.Pull) error {
	p.line.Input()
	return nil
}

func (p *simPin) ConfigureOutput(initial bool) error {
	p.line.Output(initial)
	return nil
}

func (p *simPin) Set(level bool) { p.line.Set(level) }
func (p *simPin) Get() bool      { return p.line.Get() }
func (p *simPin) Number() int    { return p.n }

type pinMap map[int]hal.GPIOPin

func (m pinMap) ByNumber(n int) (hal.GPIOPin, bool) {
	p, ok := m[n]
	return p, ok
}

type fakeMeter struct {
	value types.PowerValue
	err   error
}

func (m *fakeMeter) Read() (types.PowerValue, error) { return m.value, m.err }

type meterMap map[string]hal.PowerMeter

func (m meterMap) ByID(id string) (hal.PowerMeter, bool) {
	mt, ok := m[id]
	return mt, ok
}

func recvMsg(t *testing.T, sub *bus.Subscription, within time.Duration) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(within):
		t.Fatalf("no message on %v within %v", sub.Topic(), within)
		return nil
	}
}

// recvOn drains sub until a message on the wanted topic arrives.
func recvOn(t *testing.T, sub *bus.Subscription, want bus.Topic, within time.Duration) *bus.Message {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case m := <-sub.Channel():
			if m.Topic.Equal(want) {
				return m
			}
		case <-deadline:
			t.Fatalf("no message on %v within %v", want, within)
			return nil
		}
	}
}

func expectNothingOn(t *testing.T, sub *bus.Subscription, avoid bus.Topic, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case m := <-sub.Channel():
			if m.Topic.Equal(avoid) {
				t.Fatalf("unexpected message on %v: %+v", avoid, m.Payload)
			}
		case <-deadline:
			return
		}
	}
}
