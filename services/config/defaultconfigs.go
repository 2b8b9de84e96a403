package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgNode = `{
  "hal": {
    "devices": [
      {"id": "env0", "type": "dht11", "params": {"pin": 4}, "period_ms": 2000},
      {"id": "sw0", "type": "relay", "params": {"pin": 5, "initial": false}}
    ]
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {"baud": 115200, "rx_pin": 1, "tx_pin": 0}
    }
  },
  "heartbeat": {
    "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"node": []byte(cfgNode),
}
