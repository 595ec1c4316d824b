package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UnmarshalValue parses JSON into a Value. Numbers are decoded via
// json.Number so integers beyond 2^53 survive the round trip; fractional
// numbers are rejected, matching the marshal side.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return decodeValue(raw)
}

// UnmarshalRecord parses JSON into a Record, requiring a top-level
// object.
func UnmarshalRecord(data []byte) (Record, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(Record)
	if !ok {
		return nil, fmt.Errorf("unmarshal record: top-level value is %T, not an object", v)
	}
	return rec, nil
}

func decodeValue(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null{}, nil
	case string:
		return Text(v), nil
	case bool:
		return Bool(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("decode value: %q is not an integer", v.String())
		}
		return Int(n), nil
	case []any:
		vec := make(Vec, len(v))
		for i, elem := range v {
			dv, err := decodeValue(elem)
			if err != nil {
				return nil, err
			}
			vec[i] = dv
		}
		return vec, nil
	case map[string]any:
		rec := make(Record, len(v))
		for k, elem := range v {
			dv, err := decodeValue(elem)
			if err != nil {
				return nil, err
			}
			rec[k] = dv
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("decode value: unsupported type %T", raw)
	}
}
