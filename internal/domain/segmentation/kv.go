package segmentation

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// KV is the open key-value shape used by run metrics, clause anomaly flags
// and event detail. Values are restricted to numbers, strings, booleans and
// nested maps of the same so the columns stay statically checkable without a
// fixed schema.
type KV map[string]any

// MarshalKV renders a KV into a JSONB column value, rejecting value shapes
// outside the permitted set.
func MarshalKV(kv KV) (datatypes.JSON, error) {
	if kv == nil {
		return datatypes.JSON([]byte("{}")), nil
	}
	if err := checkKV(kv, ""); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(kv)
	if err != nil {
		return nil, fmt.Errorf("marshal kv: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// MustKV is MarshalKV for values built from literals in-process; it panics on
// a shape violation, which is a programming error.
func MustKV(kv KV) datatypes.JSON {
	raw, err := MarshalKV(kv)
	if err != nil {
		panic(err)
	}
	return raw
}

func checkKV(kv KV, prefix string) error {
	for k, v := range kv {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64, json.Number:
		case KV:
			if err := checkKV(val, path); err != nil {
				return err
			}
		case map[string]any:
			if err := checkKV(KV(val), path); err != nil {
				return err
			}
		default:
			return fmt.Errorf("kv key %q: unsupported value type %T", path, v)
		}
	}
	return nil
}
