package hal

import (
	"encoding/json"
	"errors"

	"sensornode-go/drivers/dht11"
	"sensornode-go/errcode"
)

// Shared helpers used across the service and adaptors.

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// wantBool extracts a boolean from either a map payload (by key) or a scalar.
func wantBool(src any, key string) bool {
	if m, ok := src.(map[string]any); ok {
		if v, ok := m[key]; ok {
			return wantBool(v, "")
		}
		return false
	}
	switch v := src.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return int(v) != 0
	case string:
		return v == "1" || v == "true" || v == "on"
	default:
		return false
	}
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func parsePeriodMS(p any) int {
	if m, ok := p.(map[string]any); ok {
		if v, ok := asInt(m["period_ms"]); ok {
			return v
		}
	}
	return 0
}

// readErrCode maps decoder errors to stable bus-facing codes.
func readErrCode(err error) errcode.Code {
	var bt *dht11.BitTimeoutError
	var ce *dht11.ChecksumError
	switch {
	case err == nil:
		return errcode.OK
	case errors.Is(err, dht11.ErrNoResponse):
		return errcode.NoResponse
	case errors.Is(err, dht11.ErrAckTimeout):
		return errcode.Timeout
	case errors.As(err, &bt):
		return errcode.BitTimeout
	case errors.As(err, &ce):
		return errcode.BadChecksum
	default:
		return errcode.Error
	}
}
