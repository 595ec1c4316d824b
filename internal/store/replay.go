package store

import (
	"context"
	"fmt"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// RebuildState replays a canister's committed cell writes in seq order
// and returns its final durable state. Discarded segments never journal
// write rows, so the rebuild sees only what the commit checkpoints made
// permanent.
//
// The result covers written cells only; install-time initial values for
// cells never written come from the spec, not the journal.
func (s *Store) RebuildState(ctx context.Context, canister string) (map[string]ir.Value, error) {
	writes, err := s.ReadWrites(ctx, canister)
	if err != nil {
		return nil, fmt.Errorf("rebuild state: %w", err)
	}

	state := make(map[string]ir.Value)
	for _, w := range writes {
		state[w.Cell] = w.Value
	}
	return state, nil
}

// RebuildAllStates replays every canister's committed writes.
func (s *Store) RebuildAllStates(ctx context.Context) (map[string]map[string]ir.Value, error) {
	writes, err := s.ReadWrites(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("rebuild all states: %w", err)
	}

	states := make(map[string]map[string]ir.Value)
	for _, w := range writes {
		if states[w.Canister] == nil {
			states[w.Canister] = make(map[string]ir.Value)
		}
		states[w.Canister][w.Cell] = w.Value
	}
	return states, nil
}

// VerifyState compares a rebuilt canister state against an expected
// snapshot, returning a list of human-readable mismatches. Cells absent
// from the journal are compared as absent; the caller decides how
// install-time defaults factor in.
func (s *Store) VerifyState(ctx context.Context, canister string, expected map[string]ir.Value) ([]string, error) {
	got, err := s.RebuildState(ctx, canister)
	if err != nil {
		return nil, err
	}

	var mismatches []string
	for cell, want := range expected {
		have, ok := got[cell]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s.%s: no journaled write, expected %v", canister, cell, ir.ToGo(want)))
			continue
		}
		if !ir.Equal(have, want) {
			mismatches = append(mismatches, fmt.Sprintf("%s.%s: journal has %v, expected %v", canister, cell, ir.ToGo(have), ir.ToGo(want)))
		}
	}
	for cell := range got {
		if _, ok := expected[cell]; !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s.%s: unexpected journaled write", canister, cell))
		}
	}
	return mismatches, nil
}
