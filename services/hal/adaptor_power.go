package hal

import (
	"context"
	"time"

	"sensornode-go/types"
)

// powerAdaptor publishes readings from the external energy monitor. The
// meter's serial protocol lives behind the PowerMeter boundary; this adaptor
// only schedules and forwards its readings.
type powerAdaptor struct {
	id    string
	busID string
	meter PowerMeter
}

func NewPowerAdaptor(id, busID string, meter PowerMeter) Adaptor {
	return &powerAdaptor{id: id, busID: busID, meter: meter}
}

func (a *powerAdaptor) ID() string { return a.id }

func (a *powerAdaptor) Capabilities() []CapInfo {
	return []CapInfo{{Kind: string(types.KindPower), Info: types.PowerInfo{Meter: "pzem004t", Bus: a.busID}}}
}

func (a *powerAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *powerAdaptor) Collect(ctx context.Context) (Sample, error) {
	v, err := a.meter.Read()
	if err != nil {
		return nil, err
	}
	return Sample{{Kind: string(types.KindPower), Payload: v}}, nil
}

func (a *powerAdaptor) Control(kind, method string, payload any) (any, error) {
	return nil, ErrUnsupported
}
