package store

import (
	"fmt"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// marshalRecord converts a Record to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so identical records always produce
// identical rows.
func marshalRecord(rec ir.Record) (string, error) {
	if rec == nil {
		rec = ir.Record{}
	}
	data, err := ir.MarshalCanonical(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// marshalValue converts any cell value to canonical JSON TEXT.
func marshalValue(v ir.Value) (string, error) {
	if v == nil {
		v = ir.Null{}
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses canonical JSON TEXT to a Record.
// json.Number is used internally so large integers survive the round
// trip without float64 precision loss.
func unmarshalRecord(data string) (ir.Record, error) {
	if data == "" || data == "{}" {
		return ir.Record{}, nil
	}
	rec, err := ir.UnmarshalRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

// unmarshalValue parses canonical JSON TEXT to a cell value.
func unmarshalValue(data string) (ir.Value, error) {
	if data == "" {
		return ir.Null{}, nil
	}
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
