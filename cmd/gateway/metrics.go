package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"sensornode-go/services/bridge"
)

// metrics tracks the latest sensor readings and read failures seen on the
// uplink.
type metrics struct {
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	powerMV     *prometheus.GaugeVec
	powerMA     *prometheus.GaugeVec
	powerDW     *prometheus.GaugeVec
	failures    *prometheus.CounterVec
	frames      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensor_temperature_celsius",
			Help: "Latest temperature reading in degrees Celsius.",
		}, []string{"id"}),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensor_humidity_percent",
			Help: "Latest relative humidity reading as a percentage.",
		}, []string{"id"}),
		powerMV: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensor_power_millivolts",
			Help: "Latest bus voltage from the power meter.",
		}, []string{"id"}),
		powerMA: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensor_power_milliamps",
			Help: "Latest current from the power meter.",
		}, []string{"id"}),
		powerDW: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensor_power_deciwatts",
			Help: "Latest power draw from the power meter.",
		}, []string{"id"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_read_failures_total",
			Help: "Failed sensor read cycles by capability kind and error code.",
		}, []string{"kind", "code"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_uplink_frames_total",
			Help: "Frames received from the node.",
		}),
	}
	reg.MustRegister(m.temperature, m.humidity, m.powerMV, m.powerMA, m.powerDW,
		m.failures, m.frames)
	return m
}

// observe updates metrics from one uplink message. Topics have the shape
// hal/capability/<kind>/<id>/{value,state}.
func (m *metrics) observe(w bridge.WireMsg) {
	m.frames.Inc()

	if len(w.Topic) != 5 {
		return
	}
	kind, _ := w.Topic[2].(string)
	id := topicPath(w.Topic[3:4])
	leaf, _ := w.Topic[4].(string)
	payload, _ := w.Payload.(map[string]any)
	if payload == nil {
		return
	}

	switch leaf {
	case "value":
		switch kind {
		case "temperature":
			if v, ok := payload["celsius"].(float64); ok {
				m.temperature.WithLabelValues(id).Set(v)
			}
		case "humidity":
			if v, ok := payload["percent"].(float64); ok {
				m.humidity.WithLabelValues(id).Set(v)
			}
		case "power":
			if v, ok := payload["mv"].(float64); ok {
				m.powerMV.WithLabelValues(id).Set(v)
			}
			if v, ok := payload["ma"].(float64); ok {
				m.powerMA.WithLabelValues(id).Set(v)
			}
			if v, ok := payload["dw"].(float64); ok {
				m.powerDW.WithLabelValues(id).Set(v)
			}
		}
	case "state":
		link, _ := payload["link"].(string)
		code, _ := payload["error"].(string)
		if link == "degraded" && code != "" {
			m.failures.WithLabelValues(kind, code).Inc()
		}
	}
}
