package ir

// OpKind identifies a method body instruction.
type OpKind string

const (
	// OpSet writes Value (or the call-local variable Var) into Cell,
	// provisional until checkpoint.
	OpSet OpKind = "set"
	// OpAdd adds Delta to Cell, treating an unset cell as 0.
	OpAdd OpKind = "add"
	// OpRead captures Cell's current visible value into the call-local
	// variable Var. The capture is a plain copy: it does NOT track later
	// commits by interleaved calls, which is exactly the staleness hazard
	// OpGuard exists to surface.
	OpRead OpKind = "read"
	// OpGuard traps unless Cell's current visible value equals the
	// call-local variable Var. The reconciliation primitive for resuming
	// after a suspension: re-check, don't trust the pre-call copy.
	OpGuard OpKind = "guard"
	// OpTrap unconditionally aborts the active segment with Message.
	OpTrap OpKind = "trap"
	// OpCall invokes Callee with Args and suspends the enclosing call
	// until the reply or, for bounded waits, the deadline. The only
	// suspending op.
	OpCall OpKind = "call"
	// OpWork advances the call's virtual execution time by Millis.
	// Models callee latency for bounded-wait scenarios.
	OpWork OpKind = "work"
	// OpReply sets the call's reply record to Value (must be a Record).
	// Later replies overwrite earlier ones; execution continues.
	OpReply OpKind = "reply"
)

// ValidOpKinds lists the accepted op kinds.
var ValidOpKinds = map[OpKind]bool{
	OpSet:   true,
	OpAdd:   true,
	OpRead:  true,
	OpGuard: true,
	OpTrap:  true,
	OpCall:  true,
	OpWork:  true,
	OpReply: true,
}

// Op is a single method body instruction. Which fields are meaningful
// depends on Kind; the compiler rejects stray fields.
type Op struct {
	Kind OpKind `json:"kind"`

	// Cell names the target state cell (set, add, read, guard).
	Cell string `json:"cell,omitempty"`
	// Value is the literal for set, or the reply record for reply.
	Value Value `json:"value,omitempty"`
	// Delta is the signed increment for add.
	Delta int64 `json:"delta,omitempty"`
	// Var names a call-local variable (read dest, guard source,
	// call outcome dest).
	Var string `json:"var,omitempty"`
	// Message is the trap description.
	Message string `json:"message,omitempty"`

	// Callee is the target of a call op, "canister.method".
	Callee MethodRef `json:"callee,omitempty"`
	// Args are literal arguments bound into the callee's variables.
	Args Record `json:"args,omitempty"`
	// WaitMillis bounds how long the caller stays suspended: 0 means
	// unbounded, >0 is a deadline after which the caller resumes with a
	// deadline-expired rejection while the callee runs on regardless.
	WaitMillis int64 `json:"wait_millis,omitempty"`

	// Millis is the virtual duration of a work op.
	Millis int64 `json:"millis,omitempty"`
}

// Suspending reports whether executing the op suspends the call.
func (op Op) Suspending() bool {
	return op.Kind == OpCall
}

// record renders the op as a Record for canonical hashing.
func (op Op) record() Record {
	rec := Record{"kind": Text(string(op.Kind))}
	if op.Cell != "" {
		rec["cell"] = Text(op.Cell)
	}
	if op.Value != nil {
		rec["value"] = op.Value
	}
	if op.Delta != 0 {
		rec["delta"] = Int(op.Delta)
	}
	if op.Var != "" {
		rec["var"] = Text(op.Var)
	}
	if op.Message != "" {
		rec["message"] = Text(op.Message)
	}
	if op.Callee != "" {
		rec["callee"] = Text(string(op.Callee))
	}
	if op.Args != nil {
		rec["args"] = op.Args
	}
	if op.WaitMillis != 0 {
		rec["wait_millis"] = Int(op.WaitMillis)
	}
	if op.Millis != 0 {
		rec["millis"] = Int(op.Millis)
	}
	return rec
}
