package hal

import (
	"context"
	"time"

	"sensornode-go/types"
)

// relayAdaptor is a control-only output: it never produces samples, it only
// answers set/get/toggle verbs arriving over the bus (locally or via the
// bridge's remote command path).
type relayAdaptor struct {
	id     string
	pin    GPIOPin
	params types.RelayParams
}

func NewRelayAdaptor(id string, pin GPIOPin, p types.RelayParams) Adaptor {
	return &relayAdaptor{id: id, pin: pin, params: p}
}

func (a *relayAdaptor) ID() string { return a.id }

func (a *relayAdaptor) Capabilities() []CapInfo {
	return []CapInfo{{Kind: string(types.KindRelay), Info: types.RelayInfo{Pin: a.pin.Number()}}}
}

func (a *relayAdaptor) Trigger(context.Context) (time.Duration, error) {
	return 0, ErrUnsupported
}

func (a *relayAdaptor) Collect(context.Context) (Sample, error) {
	return nil, ErrUnsupported
}

func (a *relayAdaptor) Control(kind, method string, payload any) (any, error) {
	if kind != string(types.KindRelay) {
		return nil, ErrUnsupported
	}
	switch method {
	case "set":
		on := wantBool(payload, "on")
		a.drive(on)
		return types.RelayValue{On: on}, nil
	case "toggle":
		on := !a.logicalOn()
		a.drive(on)
		return types.RelayValue{On: on}, nil
	case "get":
		return types.RelayValue{On: a.logicalOn()}, nil
	default:
		return nil, ErrUnsupported
	}
}

func (a *relayAdaptor) drive(on bool) {
	if a.params.Invert {
		on = !on
	}
	a.pin.Set(on)
}

func (a *relayAdaptor) logicalOn() bool {
	on := a.pin.Get()
	if a.params.Invert {
		on = !on
	}
	return on
}
