package hal_test

import (
	"context"
	"testing"

	"sensornode-go/drivers/dht11"
	"sensornode-go/drivers/dht11/dhtsim"
	"sensornode-go/services/hal"
	"sensornode-go/types"
)

func TestDHT11Adaptor_CollectBothKinds(t *testing.T) {
	clk := &dhtsim.Clock{}
	line := dhtsim.NewLine(clk, dhtsim.Train(dhtsim.Frame(45, 0, 24, 0)))
	ad := hal.NewDHT11Adaptor("env0", &simPin{n: 4, line: line}, clk)

	if got := ad.ID(); got != "env0" {
		t.Fatalf("ID = %q", got)
	}

	caps := ad.Capabilities()
	if len(caps) != 2 {
		t.Fatalf("capabilities = %d, want 2", len(caps))
	}
	if caps[0].Kind != "temperature" || caps[1].Kind != "humidity" {
		t.Fatalf("kinds = %q, %q", caps[0].Kind, caps[1].Kind)
	}
	info, ok := caps[0].Info.(types.TemperatureInfo)
	if !ok || info.Sensor != "dht11" || info.Pin != 4 {
		t.Fatalf("temperature info = %+v", caps[0].Info)
	}

	if after, err := ad.Trigger(context.Background()); err != nil || after != 0 {
		t.Fatalf("Trigger = (%v, %v)", after, err)
	}
	s, err := ad.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(s) != 2 {
		t.Fatalf("sample size = %d", len(s))
	}
	tv, ok := s[0].Payload.(types.TemperatureValue)
	if !ok || tv.Celsius != 24 {
		t.Fatalf("temperature payload = %+v", s[0].Payload)
	}
	hv, ok := s[1].Payload.(types.HumidityValue)
	if !ok || hv.Percent != 45 {
		t.Fatalf("humidity payload = %+v", s[1].Payload)
	}
}

func TestDHT11Adaptor_CollectRepeatable(t *testing.T) {
	clk := &dhtsim.Clock{}
	line := dhtsim.NewLine(clk, dhtsim.Train(dhtsim.Frame(60, 0, 19, 0)))
	ad := hal.NewDHT11Adaptor("env0", &simPin{n: 4, line: line}, clk)

	for i := 0; i < 3; i++ {
		s, err := ad.Collect(context.Background())
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if s[0].Payload.(types.TemperatureValue).Celsius != 19 ||
			s[1].Payload.(types.HumidityValue).Percent != 60 {
			t.Fatalf("read %d: %+v", i, s)
		}
	}
}

func TestDHT11Adaptor_SilentSensorReleasesLine(t *testing.T) {
	clk := &dhtsim.Clock{}
	line := dhtsim.NewLine(clk, nil)
	ad := hal.NewDHT11Adaptor("env0", &simPin{n: 4, line: line}, clk)

	_, err := ad.Collect(context.Background())
	if err != dht11.ErrNoResponse {
		t.Fatalf("err = %v, want ErrNoResponse", err)
	}
	if line.LineMode() != dhtsim.ModeInput {
		t.Fatalf("line not released after failed read")
	}
}

func TestDHT11Adaptor_ControlUnsupported(t *testing.T) {
	clk := &dhtsim.Clock{}
	ad := hal.NewDHT11Adaptor("env0", &simPin{n: 4, line: dhtsim.NewLine(clk, nil)}, clk)
	if _, err := ad.Control("temperature", "set", nil); err != hal.ErrUnsupported {
		t.Fatalf("err = %v", err)
	}
}
