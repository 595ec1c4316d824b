package commitlog

import (
	"fmt"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// NotFoundError reports an operation against a canister that is not
// installed.
type NotFoundError struct {
	Canister string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("canister %q is not installed", e.Canister)
}

// ExistsError reports an install over an already-installed canister.
type ExistsError struct {
	Canister string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("canister %q is already installed; use upgrade or reinstall", e.Canister)
}

// Install creates a canister and initializes its cells from the spec's
// initial values.
func (l *Log) Install(name string, initial ir.Record) error {
	if l.Exists(name) {
		return &ExistsError{Canister: name}
	}
	can := &canister{cells: make(map[string]ir.Value, len(initial))}
	for cell, v := range initial {
		can.cells[cell] = v
	}
	l.canisters[name] = can
	return nil
}

// Upgrade swaps code while preserving state: existing cells keep their
// durable values, and cells introduced by the new spec are seeded with
// their initial values.
func (l *Log) Upgrade(name string, initial ir.Record) error {
	can, ok := l.canisters[name]
	if !ok {
		return &NotFoundError{Canister: name}
	}
	for cell, v := range initial {
		if _, present := can.cells[cell]; !present {
			can.cells[cell] = v
		}
	}
	return nil
}

// Reinstall wipes the canister's state and reruns initialization.
func (l *Log) Reinstall(name string, initial ir.Record) error {
	if !l.Exists(name) {
		return &NotFoundError{Canister: name}
	}
	can := &canister{cells: make(map[string]ir.Value, len(initial))}
	for cell, v := range initial {
		can.cells[cell] = v
	}
	l.canisters[name] = can
	return nil
}

// Uninstall removes the canister and all its state.
func (l *Log) Uninstall(name string) error {
	if !l.Exists(name) {
		return &NotFoundError{Canister: name}
	}
	delete(l.canisters, name)
	return nil
}
