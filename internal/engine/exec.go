package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// startCall journals the call record and begins its first segment.
func (e *Engine) startCall(ctx context.Context, c *callState, at int64) error {
	if at > c.now {
		c.now = at
	}
	e.jCall(ctx, c.rec)

	if c.method.RejectAnonymous && c.caller.IsAnonymous() {
		return e.resolve(ctx, c, ir.OutcomeRejected, &ExecError{
			Code:     CodeAnonymousRejected,
			Message:  "method refuses anonymous callers",
			CallID:   c.id,
			Canister: c.canister,
			Method:   c.method.Name,
		})
	}

	c.env = make(map[string]ir.Value, len(c.args))
	for k, v := range c.args {
		c.env[k] = v
	}

	return e.openSegment(ctx, c)
}

// openSegment opens the overlay for the current exec segment and runs it.
func (e *Engine) openSegment(ctx context.Context, c *callState) error {
	seg := c.plan.Exec[c.segPos]
	segID, err := ir.SegmentID(c.id, seg.Index)
	if err != nil {
		return err
	}
	if err := e.log.Begin(segID, c.canister); err != nil {
		return err
	}
	c.segID = segID
	return e.runSegment(ctx, c)
}

// runSegment executes the active segment to its boundary: a suspension,
// a trap, or the end of the method. Segments run to completion without
// preemption; only a trailing call op yields control.
func (e *Engine) runSegment(ctx context.Context, c *callState) error {
	entered := c.now
	seg := c.plan.Exec[c.segPos]

	for _, op := range seg.Ops {
		if err := e.execOp(c, op); err != nil {
			return e.abortSegment(ctx, c, err)
		}
	}

	// work ops advanced the virtual clock, so the boundary commit
	// belongs at the accrued instant, not at segment entry. Defer it as
	// a self-event; calls due earlier run first against durable state
	// that excludes this segment's still-provisional writes.
	if c.now > entered {
		e.timeline.Push(event{
			kind:   eventSegmentEnd,
			dueAt:  c.now,
			seq:    e.clock.Next(),
			callID: c.id,
		})
		return nil
	}
	return e.finishSegment(ctx, c)
}

// finishSegment commits the completed segment and performs its boundary
// action: issuing the pending sub-call or resolving the call.
func (e *Engine) finishSegment(ctx context.Context, c *callState) error {
	seg := c.plan.Exec[c.segPos]

	if seg.Call != nil {
		// Checkpoint (a): the pre-call segment commits before the
		// sub-call is issued. Whatever happens later, these writes stay.
		if err := e.checkpoint(ctx, c, ir.CheckpointPreCall); err != nil {
			return err
		}
		return e.issueSubCall(ctx, c, *seg.Call)
	}

	// Final segment. Updates reach checkpoint (b) or (c); queries
	// complete without ever committing, which is the same thing as
	// committing an empty overlay (they cannot write).
	if c.method.Kind == ir.MethodQuery {
		if _, err := e.log.Commit(c.segID); err != nil {
			return err
		}
		e.jSegment(ctx, ir.SegmentRecord{
			ID:     c.segID,
			CallID: c.id,
			Index:  seg.Index,
			Kind:   ir.SegmentExec,
			Status: ir.SegmentCommitted,
			Seq:    e.clock.Next(),
		})
	} else {
		reason := ir.CheckpointCallEnd
		if c.parent != "" {
			reason = ir.CheckpointReply
		}
		if err := e.checkpoint(ctx, c, reason); err != nil {
			return err
		}
	}
	c.segID = ""
	return e.resolve(ctx, c, ir.OutcomeReplied, nil)
}

// execOp applies one non-suspending op to the active segment.
func (e *Engine) execOp(c *callState, op ir.Op) error {
	e.steps[c.token]++
	if e.steps[c.token] > e.maxSteps {
		return &ExecError{
			Code:     CodeStepsExceeded,
			Message:  fmt.Sprintf("call tree exceeded %d steps", e.maxSteps),
			CallID:   c.id,
			Canister: c.canister,
			Method:   c.method.Name,
		}
	}

	switch op.Kind {
	case ir.OpSet:
		v := op.Value
		if op.Var != "" {
			bound, ok := c.env[op.Var]
			if !ok {
				return trapf(c, "set: variable %q is not bound", op.Var)
			}
			v = bound
		}
		if v == nil {
			v = ir.Null{}
		}
		return e.log.Write(c.segID, c.canister, op.Cell, v)

	case ir.OpAdd:
		cur, err := e.log.Read(c.segID, c.canister, op.Cell)
		if err != nil {
			return err
		}
		var base int64
		switch cv := cur.(type) {
		case ir.Null:
			base = 0
		case ir.Int:
			base = int64(cv)
		default:
			return trapf(c, "add: cell %q holds %v, not an integer", op.Cell, ir.ToGo(cur))
		}
		return e.log.Write(c.segID, c.canister, op.Cell, ir.Int(base+op.Delta))

	case ir.OpRead:
		v, err := e.log.Read(c.segID, c.canister, op.Cell)
		if err != nil {
			return err
		}
		c.env[op.Var] = v
		return nil

	case ir.OpGuard:
		want, bound := c.env[op.Var]
		if !bound {
			return trapf(c, "guard: variable %q is not bound", op.Var)
		}
		got, err := e.log.Read(c.segID, c.canister, op.Cell)
		if err != nil {
			return err
		}
		if !ir.Equal(got, want) {
			return trapf(c, "guard: cell %q is %v, expected %v",
				op.Cell, ir.ToGo(got), ir.ToGo(want))
		}
		return nil

	case ir.OpTrap:
		msg := op.Message
		if msg == "" {
			msg = "explicit trap"
		}
		return trapf(c, "%s", msg)

	case ir.OpWork:
		c.now += op.Millis
		return nil

	case ir.OpReply:
		rec, ok := op.Value.(ir.Record)
		if !ok {
			return trapf(c, "reply value must be a record")
		}
		c.reply = rec
		return nil

	case ir.OpCall:
		// Call ops terminate segments; the planner never leaves one
		// inside a segment body.
		return fmt.Errorf("call op inside segment body of %s", c.id)

	default:
		return trapf(c, "unknown op kind %q", op.Kind)
	}
}

// checkpoint commits the active segment and journals the segment row,
// the checkpoint row, and one row per durable write.
func (e *Engine) checkpoint(ctx context.Context, c *callState, reason string) error {
	writes, err := e.log.Commit(c.segID)
	if err != nil {
		return err
	}
	seg := c.plan.Exec[c.segPos]

	e.jSegment(ctx, ir.SegmentRecord{
		ID:     c.segID,
		CallID: c.id,
		Index:  seg.Index,
		Kind:   ir.SegmentExec,
		Status: ir.SegmentCommitted,
		Seq:    e.clock.Next(),
	})

	cpSeq := e.clock.Next()
	cpID, err := ir.CheckpointID(c.segID, reason, cpSeq)
	if err != nil {
		return err
	}
	e.jCheckpoint(ctx, ir.CheckpointRecord{
		ID:        cpID,
		CallID:    c.id,
		SegmentID: c.segID,
		Reason:    reason,
		Seq:       cpSeq,
	})

	if len(writes) > 0 {
		recs := make([]ir.WriteRecord, len(writes))
		for i, w := range writes {
			recs[i] = ir.WriteRecord{
				CallID:    c.id,
				SegmentID: c.segID,
				Canister:  c.canister,
				Cell:      w.Cell,
				Value:     w.Value,
				Seq:       e.clock.Next(),
			}
		}
		e.jWrites(ctx, recs)
	}
	return nil
}

// abortSegment discards the active segment's provisional mutations and
// resolves the call as failed. Previously committed segments, here and
// in any callee, stay applied: rollback never reaches past the active
// segment.
func (e *Engine) abortSegment(ctx context.Context, c *callState, cause error) error {
	if err := e.log.Discard(c.segID); err != nil {
		return fmt.Errorf("discard after %v: %w", cause, err)
	}
	seg := c.plan.Exec[c.segPos]
	e.jSegment(ctx, ir.SegmentRecord{
		ID:     c.segID,
		CallID: c.id,
		Index:  seg.Index,
		Kind:   ir.SegmentExec,
		Status: ir.SegmentDiscarded,
		Seq:    e.clock.Next(),
		Error:  cause.Error(),
	})
	c.segID = ""

	var ee *ExecError
	if errors.As(cause, &ee) {
		outcomeCase := ir.OutcomeTrapped
		if ee.Code != CodeTrap {
			outcomeCase = ir.OutcomeRejected
		}
		return e.resolve(ctx, c, outcomeCase, ee)
	}
	return e.resolve(ctx, c, ir.OutcomeTrapped, trapf(c, "%v", cause))
}

// resolve finalizes the call's outcome and, for sub-calls, schedules the
// reply to the caller at the callee's own completion time.
func (e *Engine) resolve(ctx context.Context, c *callState, outcomeCase string, cause *ExecError) error {
	c.resolved = true

	reply := c.reply
	if reply == nil {
		reply = ir.Record{}
	}
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	seq := e.clock.Next()
	id, err := ir.OutcomeID(c.id, outcomeCase, reply, seq)
	if err != nil {
		return err
	}
	rec := ir.OutcomeRecord{
		ID:     id,
		CallID: c.id,
		Case:   outcomeCase,
		Reply:  reply,
		Error:  errMsg,
		Seq:    seq,
		DoneAt: c.now,
	}

	e.mu.Lock()
	e.outcomes[c.id] = rec
	e.inflight[c.token]--
	treeDone := e.inflight[c.token] <= 0
	if treeDone {
		delete(e.inflight, c.token)
	}
	e.mu.Unlock()
	// The step budget spans the whole call tree, so the counter lives
	// until the last call of the token resolves. A deadline-abandoned
	// callee still charges the same budget.
	if treeDone {
		delete(e.steps, c.token)
	}
	e.jOutcome(ctx, rec)

	e.logger.Debug("call resolved",
		"call_id", c.id, "method", string(c.rec.Method), "case", outcomeCase, "at", c.now)

	if c.parent != "" {
		e.timeline.Push(event{
			kind:    eventReply,
			dueAt:   c.now,
			seq:     e.clock.Next(),
			callID:  c.parent,
			subID:   c.id,
			outcome: &rec,
		})
	}
	return nil
}

// issueSubCall suspends the caller and schedules the callee. The caller
// holds no lock on its canister while suspended: other calls run against
// durable state until the reply or deadline resumes it.
func (e *Engine) issueSubCall(ctx context.Context, c *callState, op ir.Op) error {
	args := op.Args
	if args == nil {
		args = ir.Record{}
	}

	seq := e.clock.Next()
	subID, err := ir.CallID(c.token, op.Callee, args, seq)
	if err != nil {
		return err
	}
	c.awaiting = subID
	c.awaitingVar = op.Var
	c.segID = ""

	// A bounded wait races a deadline against the reply. At an exact
	// tie the deadline wins: it was scheduled first.
	if op.WaitMillis > 0 {
		e.timeline.Push(event{
			kind:   eventDeadline,
			dueAt:  c.now + op.WaitMillis,
			seq:    e.clock.Next(),
			callID: c.id,
			subID:  subID,
		})
	}

	canisterName, methodName, err := op.Callee.Split()
	if err != nil {
		return e.rejectSubCall(c, subID, &ExecError{Code: CodeUnknownMethod, Message: err.Error(), CallID: subID})
	}
	spec, ok := e.specs[canisterName]
	if !ok {
		return e.rejectSubCall(c, subID, &ExecError{
			Code: CodeUnknownCanister, Message: fmt.Sprintf("canister %q is not known", canisterName),
			CallID: subID, Canister: canisterName,
		})
	}
	method, ok := spec.Method(methodName)
	if !ok {
		return e.rejectSubCall(c, subID, &ExecError{
			Code: CodeUnknownMethod, Message: fmt.Sprintf("canister %q has no method %q", canisterName, methodName),
			CallID: subID, Canister: canisterName, Method: methodName,
		})
	}
	if c.depth+1 > e.maxDepth {
		return e.rejectSubCall(c, subID, &ExecError{
			Code: CodeDepthExceeded, Message: fmt.Sprintf("sub-call chain exceeded depth %d", e.maxDepth),
			CallID: subID, Canister: canisterName, Method: methodName,
		})
	}

	sub := &callState{
		id:       subID,
		token:    c.token,
		parent:   c.id,
		canister: canisterName,
		method:   method,
		caller:   ir.Principal(c.canister),
		args:     args,
		plan:     planSegments(method.Ops),
		now:      c.now,
		depth:    c.depth + 1,
		rec: ir.CallRecord{
			ID:            subID,
			Token:         c.token,
			Parent:        c.id,
			Method:        op.Callee,
			Kind:          method.Kind,
			Caller:        ir.Principal(c.canister),
			Args:          args,
			Seq:           seq,
			SubmitAt:      c.now,
			SpecHash:      e.specHash,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
		},
	}

	e.mu.Lock()
	e.calls[subID] = sub
	e.inflight[c.token]++
	e.mu.Unlock()

	e.timeline.Push(event{kind: eventCallStart, dueAt: c.now, seq: e.clock.Next(), callID: subID})
	return nil
}

// rejectSubCall resumes the caller immediately with a rejection for a
// sub-call that never executed. No callee record is journaled; the
// caller's await span and result variable carry the failure.
func (e *Engine) rejectSubCall(c *callState, subID string, cause *ExecError) error {
	out := ir.OutcomeRecord{
		CallID: subID,
		Case:   ir.OutcomeRejected,
		Reply:  ir.Record{},
		Error:  cause.Error(),
		DoneAt: c.now,
	}
	e.timeline.Push(event{
		kind:    eventReply,
		dueAt:   c.now,
		seq:     e.clock.Next(),
		callID:  c.id,
		subID:   subID,
		outcome: &out,
	})
	return nil
}

// resumeCall delivers a sub-call outcome to the suspended caller. Stale
// replies (after a deadline already resumed the caller) are dropped: the
// callee's commits are durable either way, only the caller stopped
// waiting.
func (e *Engine) resumeCall(ctx context.Context, c *callState, ev event, outcome ir.OutcomeRecord) error {
	if c.resolved || c.awaiting != ev.subID {
		return nil
	}
	return e.resumeWith(ctx, c, ev.dueAt, outcome)
}

// expireWait resumes a bound-waiting caller with a deadline-expired
// failure. The callee is untouched: it keeps executing and its own
// commits land at its own due times.
func (e *Engine) expireWait(ctx context.Context, c *callState, ev event) error {
	if c.resolved || c.awaiting != ev.subID {
		return nil
	}
	out := ir.OutcomeRecord{
		CallID: ev.subID,
		Case:   ir.OutcomeDeadline,
		Reply:  ir.Record{},
		Error: (&ExecError{
			Code: CodeDeadlineExpired, Message: "reply did not arrive before the wait deadline",
			CallID: ev.subID,
		}).Error(),
		DoneAt: ev.dueAt,
	}
	return e.resumeWith(ctx, c, ev.dueAt, out)
}

// resumeWith closes the await span and continues the caller in its next
// segment against current durable state. Anything the caller captured
// into variables before suspending may be stale by now; that is the
// call's problem to reconcile (see OpGuard), not the scheduler's.
func (e *Engine) resumeWith(ctx context.Context, c *callState, at int64, outcome ir.OutcomeRecord) error {
	c.awaiting = ""
	if at > c.now {
		c.now = at
	}

	awaitIdx := c.plan.Exec[c.segPos].Index + 1
	awaitID, err := ir.SegmentID(c.id, awaitIdx)
	if err != nil {
		return err
	}
	e.jSegment(ctx, ir.SegmentRecord{
		ID:     awaitID,
		CallID: c.id,
		Index:  awaitIdx,
		Kind:   ir.SegmentAwait,
		Status: ir.SegmentCommitted,
		Seq:    e.clock.Next(),
	})

	if c.awaitingVar != "" {
		res := ir.Record{
			"case":  ir.Text(outcome.Case),
			"reply": outcome.Reply,
		}
		if outcome.Error != "" {
			res["error"] = ir.Text(outcome.Error)
		}
		c.env[c.awaitingVar] = res
	}
	c.awaitingVar = ""

	c.segPos++
	return e.openSegment(ctx, c)
}

// Journal helpers: failures are logged, never retried, so a flaky
// journal cannot fork execution order.

func (e *Engine) jCall(ctx context.Context, rec ir.CallRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.WriteCall(ctx, rec); err != nil {
		e.logger.Error("journal call failed", "call_id", rec.ID, "error", err)
	}
}

func (e *Engine) jSegment(ctx context.Context, rec ir.SegmentRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.WriteSegment(ctx, rec); err != nil {
		e.logger.Error("journal segment failed", "segment_id", rec.ID, "error", err)
	}
}

func (e *Engine) jCheckpoint(ctx context.Context, rec ir.CheckpointRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.WriteCheckpoint(ctx, rec); err != nil {
		e.logger.Error("journal checkpoint failed", "checkpoint_id", rec.ID, "error", err)
	}
}

func (e *Engine) jWrites(ctx context.Context, recs []ir.WriteRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.WriteCellWrites(ctx, recs); err != nil {
		e.logger.Error("journal writes failed", "count", len(recs), "error", err)
	}
}

func (e *Engine) jOutcome(ctx context.Context, rec ir.OutcomeRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.WriteOutcome(ctx, rec); err != nil {
		e.logger.Error("journal outcome failed", "outcome_id", rec.ID, "error", err)
	}
}
