package harness

import "github.com/RareSkills/icp-for-evm-sub000/internal/ir"

// Trace event types.
const (
	EventCall    = "call"
	EventOutcome = "outcome"
)

// TraceEvent is one entry in a scenario's execution trace: either a
// top-level call submission or its resolution.
type TraceEvent struct {
	Type   string       `json:"type"` // "call" or "outcome"
	Method ir.MethodRef `json:"method,omitempty"`
	Caller ir.Principal `json:"caller,omitempty"`
	Args   ir.Record    `json:"args,omitempty"`
	Case   string       `json:"case,omitempty"`
	Reply  ir.Record    `json:"reply,omitempty"`
	Error  string       `json:"error,omitempty"`
	// At is the virtual time (ms) the event occurred: submission time
	// for calls, resolution time for outcomes.
	At int64 `json:"at"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if all expect clauses and assertions hold.
	Pass bool `json:"pass"`

	// Trace contains call and outcome events in step order.
	// Used for trace assertions and golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds each canister's final durable cells.
	State map[string]map[string]ir.Value `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]map[string]ir.Value),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCallTrace adds a call submission to the trace.
func (r *Result) AddCallTrace(method ir.MethodRef, caller ir.Principal, args ir.Record, at int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventCall,
		Method: method,
		Caller: caller,
		Args:   args,
		At:     at,
	})
}

// AddOutcomeTrace adds a call resolution to the trace.
func (r *Result) AddOutcomeTrace(method ir.MethodRef, out ir.OutcomeRecord) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventOutcome,
		Method: method,
		Case:   out.Case,
		Reply:  out.Reply,
		Error:  out.Error,
		At:     out.DoneAt,
	})
}
