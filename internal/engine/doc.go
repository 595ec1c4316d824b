// Package engine implements the per-canister execution model: calls are
// split into segments at inter-canister call boundaries, segment
// mutations stay provisional until a commit checkpoint, suspended calls
// interleave with other calls against durable state, and a trap discards
// only the active segment.
//
// # Checkpoints
//
// A segment's provisional writes become durable at exactly three points:
//
//  1. immediately before the segment's trailing sub-call is issued
//  2. when a callee's own final segment completes successfully
//  3. when a trap-free top-level call finishes
//
// Once a checkpoint fires, the committed writes survive any later trap in
// the same call. Queries never reach a checkpoint.
//
// # Scheduling
//
// The engine is a single-writer event loop over a virtual-time event
// queue. Events carry a due time in virtual milliseconds and a monotonic
// sequence number; they are processed in (due time, sequence) order, so a
// run is fully determined by its submissions. While one call sits
// suspended awaiting a reply, any event due earlier runs first, which is
// how concurrent calls interleave without threads.
//
// A segment that accrues work time reaches its boundary, and with it any
// checkpoint, at the accrued virtual instant: its writes stay provisional
// until then, so calls due in between observe only state committed before
// their own time.
//
// A bounded wait schedules a deadline event alongside the sub-call.
// Whichever of reply and deadline is due first resumes the caller; the
// loser is ignored on arrival. A deadline never cancels the callee, whose
// segments still execute and commit at their own due times.
package engine
