// Package commitlog tracks which cell mutations are provisional and which
// are durable. Each canister owns a durable cell map; every executing
// segment gets a provisional overlay that is either folded into durable
// state at a commit checkpoint or dropped on trap.
//
// The log itself is not goroutine-safe: it is owned by the engine's
// single-writer loop, which is the only goroutine that mutates it.
package commitlog

import (
	"fmt"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// Write is one committed cell mutation, in first-write order within its
// segment. Returned by Commit so callers can journal exactly what became
// durable.
type Write struct {
	Cell  string
	Value ir.Value
}

type canister struct {
	cells map[string]ir.Value
}

type overlay struct {
	canister string
	writes   map[string]ir.Value
	order    []string // cells in first-write order, for deterministic journaling
}

// Log is the per-emulator commit log over all installed canisters.
type Log struct {
	canisters map[string]*canister
	open      map[string]*overlay // segment ID -> provisional overlay
	committed map[string]bool     // segment IDs folded into durable state
	discarded map[string]bool
}

// New creates an empty commit log with no canisters installed.
func New() *Log {
	return &Log{
		canisters: make(map[string]*canister),
		open:      make(map[string]*overlay),
		committed: make(map[string]bool),
		discarded: make(map[string]bool),
	}
}

// Exists reports whether a canister is installed.
func (l *Log) Exists(name string) bool {
	_, ok := l.canisters[name]
	return ok
}

// Begin opens a provisional overlay for a segment about to execute
// against the named canister. Exactly one overlay may be open per
// segment, and a resolved segment can never reopen.
func (l *Log) Begin(segID, canisterName string) error {
	if !l.Exists(canisterName) {
		return &NotFoundError{Canister: canisterName}
	}
	if l.committed[segID] || l.discarded[segID] {
		return fmt.Errorf("segment %s already resolved", segID)
	}
	if _, ok := l.open[segID]; ok {
		return fmt.Errorf("segment %s already has an open overlay", segID)
	}
	l.open[segID] = &overlay{
		canister: canisterName,
		writes:   make(map[string]ir.Value),
	}
	return nil
}

// Read returns the value of a cell as visible to the given segment:
// the segment's own provisional writes shadow durable state. A cell
// never written reads as Null.
func (l *Log) Read(segID, canisterName, cell string) (ir.Value, error) {
	can, ok := l.canisters[canisterName]
	if !ok {
		return nil, &NotFoundError{Canister: canisterName}
	}
	if ov, ok := l.open[segID]; ok && ov.canister == canisterName {
		if v, written := ov.writes[cell]; written {
			return v, nil
		}
	}
	if v, ok := can.cells[cell]; ok {
		return v, nil
	}
	return ir.Null{}, nil
}

// DurableRead returns a cell's committed value, ignoring every open
// overlay. This is what interleaved calls and queries observe.
func (l *Log) DurableRead(canisterName, cell string) (ir.Value, error) {
	can, ok := l.canisters[canisterName]
	if !ok {
		return nil, &NotFoundError{Canister: canisterName}
	}
	if v, ok := can.cells[cell]; ok {
		return v, nil
	}
	return ir.Null{}, nil
}

// Write records a provisional mutation in the segment's overlay.
func (l *Log) Write(segID, canisterName, cell string, value ir.Value) error {
	ov, ok := l.open[segID]
	if !ok {
		return fmt.Errorf("segment %s has no open overlay", segID)
	}
	if ov.canister != canisterName {
		return fmt.Errorf("segment %s is bound to canister %q, not %q", segID, ov.canister, canisterName)
	}
	if _, seen := ov.writes[cell]; !seen {
		ov.order = append(ov.order, cell)
	}
	ov.writes[cell] = value
	return nil
}

// Commit folds the segment's overlay into durable state, atomically and
// irrevocably: after Commit returns, no later event in the same call can
// undo these writes. Committing an already-committed segment is a no-op
// returning nil writes (exactly-once application). Committing a
// discarded segment is a programming error.
func (l *Log) Commit(segID string) ([]Write, error) {
	if l.committed[segID] {
		return nil, nil
	}
	if l.discarded[segID] {
		return nil, fmt.Errorf("segment %s was discarded and cannot commit", segID)
	}
	ov, ok := l.open[segID]
	if !ok {
		return nil, fmt.Errorf("segment %s has no open overlay", segID)
	}

	can := l.canisters[ov.canister]
	if can == nil {
		// Uninstalled while the segment ran; the overlay has nowhere to go.
		return nil, &NotFoundError{Canister: ov.canister}
	}

	writes := make([]Write, 0, len(ov.order))
	for _, cell := range ov.order {
		can.cells[cell] = ov.writes[cell]
		writes = append(writes, Write{Cell: cell, Value: ov.writes[cell]})
	}

	delete(l.open, segID)
	l.committed[segID] = true
	return writes, nil
}

// Discard drops the segment's overlay; touched cells read back their
// pre-segment durable values as if the segment never ran. Discarding a
// committed segment violates commit monotonicity and errors.
func (l *Log) Discard(segID string) error {
	if l.committed[segID] {
		return fmt.Errorf("segment %s is committed; commits are monotonic", segID)
	}
	if l.discarded[segID] {
		return nil
	}
	if _, ok := l.open[segID]; !ok {
		return fmt.Errorf("segment %s has no open overlay", segID)
	}
	delete(l.open, segID)
	l.discarded[segID] = true
	return nil
}

// Committed reports whether the segment's writes are durable.
func (l *Log) Committed(segID string) bool {
	return l.committed[segID]
}

// Snapshot returns a copy of a canister's durable cells, for final-state
// assertions and replay verification.
func (l *Log) Snapshot(canisterName string) (map[string]ir.Value, error) {
	can, ok := l.canisters[canisterName]
	if !ok {
		return nil, &NotFoundError{Canister: canisterName}
	}
	out := make(map[string]ir.Value, len(can.cells))
	for k, v := range can.cells {
		out[k] = v
	}
	return out, nil
}
