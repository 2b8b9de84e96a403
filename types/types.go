// Package types holds the public payload and configuration schemas that
// cross the bus (and, via the bridge, leave the device).
package types

// ---- Common service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // e.g. "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"`
}

// ---- Capability kinds ----

type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindRelay       Kind = "relay"
	KindPower       Kind = "power"
)

// ---- Environment capability payloads ----

// Info structs appear retained on hal/capability/<kind>/<id>/info.
type TemperatureInfo struct {
	Sensor string `json:"sensor"` // "dht11"
	Pin    int    `json:"pin"`
}

type HumidityInfo struct {
	Sensor string `json:"sensor"`
	Pin    int    `json:"pin"`
}

// The DHT11 reports whole units only; no fixed-point scaling is needed.

type TemperatureValue struct {
	Celsius int `json:"celsius"`
}

type HumidityValue struct {
	Percent int `json:"percent"`
}

// ---- Relay capability ----

type RelayParams struct {
	Pin     int  `json:"pin"`
	Initial bool `json:"initial,omitempty"`
	Invert  bool `json:"invert,omitempty"`
}

type RelayInfo struct {
	Pin int `json:"pin"`
}

type RelayValue struct {
	On bool `json:"on"`
}

// RelaySet is the control payload for verb "set".
type RelaySet struct {
	On bool `json:"on"`
}

// ---- Power capability (external meter boundary) ----

type PowerInfo struct {
	Meter string `json:"meter"` // e.g. "pzem004t"
	Bus   string `json:"bus"`   // e.g. "uart1"
}

type PowerValue struct {
	MilliVolts int32 `json:"mv"`
	MilliAmps  int32 `json:"ma"`
	DeciWatts  int32 `json:"dw"`
}

// ---- Generic replies ----

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ---- Public HAL configuration ----

type HALConfig struct {
	Devices []HALDevice `json:"devices"`
}

type HALDevice struct {
	ID       string `json:"id"`   // logical device id, e.g. "env0"
	Type     string `json:"type"` // "dht11" | "relay" | "power"
	Params   any    `json:"params"`
	PeriodMS int    `json:"period_ms,omitempty"` // producers only
}

// DHT11Params configures the single-wire sensor device.
type DHT11Params struct {
	Pin int `json:"pin"`
}
