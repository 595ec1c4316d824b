package harness

import (
	"fmt"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// EvaluateAssertions checks every assertion against the result and
// returns one message per failure. An empty slice means all passed.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result, a)
		case AssertTraceCount:
			err = assertTraceCount(result, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion[%d] %s: %s", i, a.Type, err))
		}
	}
	return failures
}

// assertTraceContains passes if some call event matches the method and,
// when given, the args subset.
func assertTraceContains(result *Result, a Assertion) error {
	want, err := convertArgs(a.Args)
	if err != nil {
		return fmt.Errorf("args: %w", err)
	}
	for _, ev := range result.Trace {
		if ev.Type != EventCall || string(ev.Method) != a.Method {
			continue
		}
		if a.Args == nil || recordContains(ev.Args, want) {
			return nil
		}
	}
	return fmt.Errorf("no call to %s with matching args in trace", a.Method)
}

// assertTraceOrder passes if the listed methods appear as call events
// in the given relative order, not necessarily adjacent.
func assertTraceOrder(result *Result, a Assertion) error {
	next := 0
	for _, ev := range result.Trace {
		if next >= len(a.Methods) {
			break
		}
		if ev.Type == EventCall && string(ev.Method) == a.Methods[next] {
			next++
		}
	}
	if next < len(a.Methods) {
		return fmt.Errorf("expected call to %s after its predecessors, not found", a.Methods[next])
	}
	return nil
}

// assertTraceCount passes if exactly count call events name the method.
func assertTraceCount(result *Result, a Assertion) error {
	got := 0
	for _, ev := range result.Trace {
		if ev.Type == EventCall && string(ev.Method) == a.Method {
			got++
		}
	}
	if got != a.Count {
		return fmt.Errorf("%d calls to %s, expected %d", got, a.Method, a.Count)
	}
	return nil
}

// assertFinalState passes if every listed cell of the canister ended up
// with the given durable value.
func assertFinalState(result *Result, a Assertion) error {
	state, ok := result.State[a.Canister]
	if !ok {
		return fmt.Errorf("canister %s has no recorded state", a.Canister)
	}
	for cell, raw := range a.Cells {
		want, err := ir.FromGo(raw)
		if err != nil {
			return fmt.Errorf("cell %s: %w", cell, err)
		}
		got, ok := state[cell]
		if !ok {
			return fmt.Errorf("cell %s.%s not present", a.Canister, cell)
		}
		if !ir.Equal(got, want) {
			return fmt.Errorf("cell %s.%s is %v, expected %v",
				a.Canister, cell, ir.ToGo(got), ir.ToGo(want))
		}
	}
	return nil
}

// recordContains reports whether every field of want appears in got
// with an equal value.
func recordContains(got, want ir.Record) bool {
	for key, wantVal := range want {
		gotVal, ok := got[key]
		if !ok || !ir.Equal(gotVal, wantVal) {
			return false
		}
	}
	return true
}
