package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"sensornode-go/services/bridge"
)

func TestCommandToWire(t *testing.T) {
	w, ok := commandToWire("sensors/node",
		"sensors/node/cmd/hal/capability/relay/0/control/set",
		[]byte(`{"on":true}`))
	if !ok {
		t.Fatal("command rejected")
	}
	if len(w.Topic) != 6 {
		t.Fatalf("topic = %v", w.Topic)
	}
	if w.Topic[3] != 0 {
		t.Fatalf("id token = %#v, want int 0", w.Topic[3])
	}
	p := w.Payload.(map[string]any)
	if p["on"] != true {
		t.Fatalf("payload = %v", p)
	}

	if _, ok := commandToWire("sensors/node", "sensors/other/cmd/x", nil); ok {
		t.Fatal("foreign prefix accepted")
	}
	if _, ok := commandToWire("sensors/node", "sensors/node/cmd/x", []byte("{broken")); ok {
		t.Fatal("broken payload accepted")
	}
}

func TestTopicPath(t *testing.T) {
	got := topicPath([]any{"hal", "capability", "temperature", float64(0), "value"})
	if got != "hal/capability/temperature/0/value" {
		t.Fatalf("path = %q", got)
	}
}

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)

	m.observe(bridge.WireMsg{
		Topic:   []any{"hal", "capability", "temperature", float64(0), "value"},
		Payload: map[string]any{"celsius": float64(24)},
	})
	m.observe(bridge.WireMsg{
		Topic:   []any{"hal", "capability", "humidity", float64(0), "value"},
		Payload: map[string]any{"percent": float64(45)},
	})
	m.observe(bridge.WireMsg{
		Topic:   []any{"hal", "capability", "temperature", float64(0), "state"},
		Payload: map[string]any{"link": "degraded", "error": "bad_checksum"},
	})

	if got := testutil.ToFloat64(m.temperature.WithLabelValues("0")); got != 24 {
		t.Fatalf("temperature gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.humidity.WithLabelValues("0")); got != 45 {
		t.Fatalf("humidity gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("temperature", "bad_checksum")); got != 1 {
		t.Fatalf("failure counter = %v", got)
	}
}
