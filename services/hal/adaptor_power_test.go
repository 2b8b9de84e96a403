package hal_test

import (
	"context"
	"errors"
	"testing"

	"sensornode-go/services/hal"
	"sensornode-go/types"
)

func TestPowerAdaptor_Collect(t *testing.T) {
	m := &fakeMeter{value: types.PowerValue{MilliVolts: 12150, MilliAmps: 830, DeciWatts: 101}}
	ad := hal.NewPowerAdaptor("pm0", "uart1", m)

	caps := ad.Capabilities()
	if len(caps) != 1 || caps[0].Kind != "power" {
		t.Fatalf("capabilities = %+v", caps)
	}
	info := caps[0].Info.(types.PowerInfo)
	if info.Bus != "uart1" {
		t.Fatalf("info = %+v", info)
	}

	s, err := ad.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := s[0].Payload.(types.PowerValue); got != m.value {
		t.Fatalf("payload = %+v", got)
	}
}

func TestPowerAdaptor_MeterError(t *testing.T) {
	sentinel := errors.New("meter offline")
	ad := hal.NewPowerAdaptor("pm0", "uart1", &fakeMeter{err: sentinel})
	if _, err := ad.Collect(context.Background()); err != sentinel {
		t.Fatalf("err = %v", err)
	}
}
