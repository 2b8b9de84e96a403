package hal

import (
	"context"
	"time"

	"sensornode-go/drivers/dht11"
	"sensornode-go/types"
)

// lineFromPin adapts a GPIOPin to the decoder's Line contract. The released
// state uses the internal pull-up; an external pull-up on the data line is
// still recommended by the sensor's datasheet.
type lineFromPin struct {
	pin GPIOPin
}

func (l lineFromPin) Input()            { _ = l.pin.ConfigureInput(PullUp) }
func (l lineFromPin) Output(level bool) { _ = l.pin.ConfigureOutput(level) }
func (l lineFromPin) Set(level bool)    { l.pin.Set(level) }
func (l lineFromPin) Get() bool         { return l.pin.Get() }

type dht11Adaptor struct {
	id  string
	pin int
	dev dht11.Device
}

// NewDHT11Adaptor wires the single-wire decoder to a pin. The clock must
// have microsecond resolution; see dht11.Clock.
func NewDHT11Adaptor(id string, pin GPIOPin, clk dht11.Clock) Adaptor {
	dev := dht11.New(lineFromPin{pin: pin}, clk)
	dev.Configure()
	// Leave the line idle until the first read.
	_ = pin.ConfigureInput(PullUp)
	return &dht11Adaptor{id: id, pin: pin.Number(), dev: dev}
}

func (a *dht11Adaptor) ID() string { return a.id }

func (a *dht11Adaptor) Capabilities() []CapInfo {
	return []CapInfo{
		{Kind: string(types.KindTemperature), Info: types.TemperatureInfo{Sensor: "dht11", Pin: a.pin}},
		{Kind: string(types.KindHumidity), Info: types.HumidityInfo{Sensor: "dht11", Pin: a.pin}},
	}
}

// The DHT11 transfer is single-phase and blocking, so Trigger is free and
// Collect does the whole handshake.
func (a *dht11Adaptor) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *dht11Adaptor) Collect(ctx context.Context) (Sample, error) {
	r, err := a.dev.Read()
	if err != nil {
		return nil, err
	}
	return Sample{
		{Kind: string(types.KindTemperature), Payload: types.TemperatureValue{Celsius: int(r.Temperature)}},
		{Kind: string(types.KindHumidity), Payload: types.HumidityValue{Percent: int(r.Humidity)}},
	}, nil
}

func (a *dht11Adaptor) Control(kind, method string, payload any) (any, error) {
	return nil, ErrUnsupported
}
