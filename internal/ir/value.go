package ir

import (
	"fmt"
	"sort"
)

// Value is a sealed interface over the types a state cell may hold.
// Only Null, Text, Int, Bool, Vec, and Record implement it.
// There is deliberately no float variant: floats break deterministic
// hashing and have no place in a replayable journal.
type Value interface {
	value() // sealed
}

// Null is the absent value. Reading a cell that was never written
// returns Null rather than an error.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Text is a UTF-8 string value.
type Text string

func (Text) value() {}

// Int is a 64-bit signed integer value.
type Int int64

func (Int) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Vec is an ordered sequence of values.
type Vec []Value

func (Vec) value() {}

// Record maps field names to values. Use SortedKeys for deterministic
// iteration.
type Record map[string]Value

func (Record) value() {}

// SortedKeys returns the record's keys in ascending byte order.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep equality between two values.
// Null equals Null; Vec and Record compare element-wise.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Vec:
		bv, ok := b.(Vec)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		bv, ok := b.(Record)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, present := bv[k]
			if !present || !Equal(v, bvv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FromGo converts plain Go values (as produced by YAML or CUE decoding)
// into sealed values. Floats are rejected.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return Text(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case float64, float32:
		return nil, fmt.Errorf("float values are not allowed: %v", val)
	case []any:
		vec := make(Vec, len(val))
		for i, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("vec[%d]: %w", i, err)
			}
			vec[i] = converted
		}
		return vec, nil
	case map[string]any:
		rec := make(Record, len(val))
		for k, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("record[%q]: %w", k, err)
			}
			rec[k] = converted
		}
		return rec, nil
	case Value:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToGo converts a sealed value back into plain Go values, suitable for
// JSON encoding in CLI output or trace snapshots.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Text:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Vec:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Record:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}
