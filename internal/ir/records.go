package ir

// Journal record types. These are what the store persists; IDs are
// content-addressed via hash.go so replay regenerates identical rows.

// CallRecord is one invocation of a canister entry point.
// Token correlates every call in one logical call tree; Parent is the
// enclosing call's ID, empty for top-level calls.
type CallRecord struct {
	ID            string     `json:"id"`
	Token         string     `json:"token"`
	Parent        string     `json:"parent,omitempty"`
	Method        MethodRef  `json:"method"`
	Kind          MethodKind `json:"kind"`
	Caller        Principal  `json:"caller"`
	Args          Record     `json:"args"`
	Seq           int64      `json:"seq"`
	SubmitAt      int64      `json:"submit_at"` // virtual ms
	SpecHash      string     `json:"spec_hash"`
	EngineVersion string     `json:"engine_version"`
	IRVersion     string     `json:"ir_version"`
}

// Segment statuses. A segment row is written when the segment resolves,
// never while it is active.
const (
	SegmentCommitted = "committed"
	SegmentDiscarded = "discarded"
)

// Segment kinds. Exec segments run ops; await segments are the spans
// spent suspended on a sub-call and never carry mutations.
const (
	SegmentExec  = "exec"
	SegmentAwait = "await"
)

// SegmentRecord is one resolved execution span of a call.
type SegmentRecord struct {
	ID     string `json:"id"`
	CallID string `json:"call_id"`
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Seq    int64  `json:"seq"`
	// Error carries the trap message for discarded segments.
	Error string `json:"error,omitempty"`
}

// Checkpoint reasons, matching the three points at which provisional
// mutations become durable.
const (
	CheckpointPreCall = "pre_call"  // immediately before issuing a sub-call
	CheckpointReply   = "reply"     // callee segment completed successfully
	CheckpointCallEnd = "call_end"  // top-level completion without trap
)

// CheckpointRecord marks the instant a segment's mutations became
// permanent. Once a row exists for a segment, no later event in the same
// call may undo that segment's writes.
type CheckpointRecord struct {
	ID        string `json:"id"`
	CallID    string `json:"call_id"`
	SegmentID string `json:"segment_id"`
	Reason    string `json:"reason"`
	Seq       int64  `json:"seq"`
}

// WriteRecord is one durable cell mutation. Rows are journaled only at
// commit time; a discarded segment leaves no write rows.
type WriteRecord struct {
	CallID    string `json:"call_id"`
	SegmentID string `json:"segment_id"`
	Canister  string `json:"canister"`
	Cell      string `json:"cell"`
	Value     Value  `json:"value"`
	Seq       int64  `json:"seq"`
}

// Outcome cases for a resolved call.
const (
	OutcomeReplied  = "replied"
	OutcomeTrapped  = "trapped"
	OutcomeDeadline = "deadline_expired"
	OutcomeRejected = "rejected"
)

// OutcomeRecord resolves a call: exactly one per call. For non-replied
// cases Error describes the failure; the caller of a failed sub-call
// receives this as an explicit signal and keeps executing.
type OutcomeRecord struct {
	ID     string `json:"id"`
	CallID string `json:"call_id"`
	Case   string `json:"case"`
	Reply  Record `json:"reply"`
	Error  string `json:"error,omitempty"`
	Seq    int64  `json:"seq"`
	// DoneAt is the virtual time the call resolved.
	DoneAt int64 `json:"done_at"`
}
