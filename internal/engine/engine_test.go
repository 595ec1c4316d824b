package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

func newTestEngine(t *testing.T, specs []ir.CanisterSpec, opts ...Option) *Engine {
	t.Helper()
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	eng, err := New(nil, specs, NewSequenceGenerator("tok"), opts...)
	require.NoError(t, err)
	require.NoError(t, eng.InstallAll())
	return eng
}

func mustInt(t *testing.T, eng *Engine, canister, cell string) int64 {
	t.Helper()
	v, err := eng.DurableRead(canister, cell)
	require.NoError(t, err)
	iv, ok := v.(ir.Int)
	require.True(t, ok, "cell %s.%s holds %T", canister, cell, v)
	return int64(iv)
}

func counterSpec() ir.CanisterSpec {
	return ir.CanisterSpec{
		Name:  "counter",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{
			{
				Name: "bump",
				Kind: ir.MethodUpdate,
				Ops:  []ir.Op{{Kind: ir.OpAdd, Cell: "count", Delta: 1}},
			},
			{
				Name: "bump_then_trap",
				Kind: ir.MethodUpdate,
				Ops: []ir.Op{
					{Kind: ir.OpAdd, Cell: "count", Delta: 1},
					{Kind: ir.OpTrap, Message: "boom"},
				},
			},
			{
				Name: "get",
				Kind: ir.MethodQuery,
				Ops:  []ir.Op{{Kind: ir.OpRead, Cell: "count", Var: "v"}},
			},
		},
	}
}

// A fully synchronous call that traps leaves no trace: classic
// all-or-nothing atomicity.
func TestSingleSegmentTrapDiscardsEverything(t *testing.T) {
	eng := newTestEngine(t, []ir.CanisterSpec{counterSpec()})

	id, err := eng.Submit(SubmitRequest{Method: "counter.bump_then_trap", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(id)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeTrapped, out.Case)
	assert.Contains(t, out.Error, "boom")

	assert.Equal(t, int64(0), mustInt(t, eng, "counter", "count"))
}

func TestSingleSegmentSuccessCommitsEverything(t *testing.T) {
	eng := newTestEngine(t, []ir.CanisterSpec{counterSpec()})

	id, err := eng.Submit(SubmitRequest{Method: "counter.bump", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(id)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeReplied, out.Case)
	assert.Equal(t, int64(1), mustInt(t, eng, "counter", "count"))
}

// A trap after a sub-call must not undo the pre-call checkpoint or the
// callee's own committed effects.
func TestTrapAfterSubCallKeepsCommittedSegments(t *testing.T) {
	caller := ir.CanisterSpec{
		Name:  "caller",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name: "bump_call_trap",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpAdd, Cell: "count", Delta: 1},
				{Kind: ir.OpCall, Callee: "remote.bump"},
				{Kind: ir.OpTrap, Message: "after sub-call"},
			},
		}},
	}
	remote := ir.CanisterSpec{
		Name:  "remote",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name: "bump",
			Kind: ir.MethodUpdate,
			Ops:  []ir.Op{{Kind: ir.OpAdd, Cell: "count", Delta: 1}},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{caller, remote})

	id, err := eng.Submit(SubmitRequest{Method: "caller.bump_call_trap", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(id)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeTrapped, out.Case)

	// The pre-call segment committed before the sub-call was issued and
	// the callee committed independently; only the post-call segment's
	// mutations vanished.
	assert.Equal(t, int64(1), mustInt(t, eng, "caller", "count"))
	assert.Equal(t, int64(1), mustInt(t, eng, "remote", "count"))
}

// A callee trap is an explicit failure signal: the caller's next segment
// still runs, and the caller's prior commits stay.
func TestCalleeTrapSignalsCallerWhoContinues(t *testing.T) {
	caller := ir.CanisterSpec{
		Name:  "caller",
		Cells: ir.Record{"attempts": ir.Int(0), "result": ir.Null{}},
		Methods: []ir.MethodSpec{{
			Name: "try_remote",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpAdd, Cell: "attempts", Delta: 1},
				{Kind: ir.OpCall, Callee: "remote.explode", Var: "r"},
				{Kind: ir.OpSet, Cell: "result", Var: "r"},
			},
		}},
	}
	remote := ir.CanisterSpec{
		Name:  "remote",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name: "explode",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpAdd, Cell: "count", Delta: 1},
				{Kind: ir.OpTrap, Message: "remote failure"},
			},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{caller, remote})

	id, err := eng.Submit(SubmitRequest{Method: "caller.try_remote", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(id)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeReplied, out.Case, "caller completes despite callee trap")

	assert.Equal(t, int64(1), mustInt(t, eng, "caller", "attempts"))
	assert.Equal(t, int64(0), mustInt(t, eng, "remote", "count"), "callee trap discarded its own segment")

	v, err := eng.DurableRead("caller", "result")
	require.NoError(t, err)
	res, ok := v.(ir.Record)
	require.True(t, ok)
	assert.Equal(t, ir.Text(ir.OutcomeTrapped), res["case"])
}

// While a call is suspended, an interleaved call commits; the suspended
// call resumes against current durable state and its pre-suspension
// variable copy is stale. The guard op detects the mismatch and aborts
// the pending increment.
func TestStaleReadDetectedOnResume(t *testing.T) {
	spec := ir.CanisterSpec{
		Name:  "counter",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{
			{
				Name: "careful_bump",
				Kind: ir.MethodUpdate,
				Ops: []ir.Op{
					{Kind: ir.OpRead, Cell: "count", Var: "before"},
					{Kind: ir.OpCall, Callee: "counter.pause"},
					{Kind: ir.OpGuard, Cell: "count", Var: "before"},
					{Kind: ir.OpAdd, Cell: "count", Delta: 1},
				},
			},
			{
				Name: "pause",
				Kind: ir.MethodUpdate,
				Ops:  []ir.Op{{Kind: ir.OpWork, Millis: 10}},
			},
			{
				Name: "bump",
				Kind: ir.MethodUpdate,
				Ops:  []ir.Op{{Kind: ir.OpAdd, Cell: "count", Delta: 1}},
			},
		},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{spec})

	careful, err := eng.Submit(SubmitRequest{Method: "counter.careful_bump", Caller: "alice"})
	require.NoError(t, err)
	// Arrives while careful_bump is suspended on counter.pause.
	interloper, err := eng.Submit(SubmitRequest{Method: "counter.bump", Caller: "bob", At: 1})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(interloper)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeReplied, out.Case)

	out, ok = eng.Outcome(careful)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeTrapped, out.Case)
	assert.Contains(t, out.Error, "guard")

	// 1 from the interleaved bump; careful_bump's increment aborted.
	assert.Equal(t, int64(1), mustInt(t, eng, "counter", "count"))
}

// Without interleaving the guard passes and the increment lands.
func TestGuardPassesWithoutInterleaving(t *testing.T) {
	spec := ir.CanisterSpec{
		Name:  "counter",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{
			{
				Name: "careful_bump",
				Kind: ir.MethodUpdate,
				Ops: []ir.Op{
					{Kind: ir.OpRead, Cell: "count", Var: "before"},
					{Kind: ir.OpCall, Callee: "counter.pause"},
					{Kind: ir.OpGuard, Cell: "count", Var: "before"},
					{Kind: ir.OpAdd, Cell: "count", Delta: 1},
				},
			},
			{
				Name: "pause",
				Kind: ir.MethodUpdate,
				Ops:  []ir.Op{{Kind: ir.OpWork, Millis: 10}},
			},
		},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{spec})

	id, err := eng.Submit(SubmitRequest{Method: "counter.careful_bump", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, _ := eng.Outcome(id)
	assert.Equal(t, ir.OutcomeReplied, out.Case)
	assert.Equal(t, int64(1), mustInt(t, eng, "counter", "count"))
}

// A bounded wait expires without aborting the callee: the caller fails
// at the deadline while the callee's mutations still commit later.
func TestBoundedWaitDeadline(t *testing.T) {
	front := ir.CanisterSpec{
		Name:  "front",
		Cells: ir.Record{"last_result": ir.Null{}},
		Methods: []ir.MethodSpec{{
			Name: "ask",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpCall, Callee: "back.slow", Var: "r", WaitMillis: 5000},
				{Kind: ir.OpSet, Cell: "last_result", Var: "r"},
			},
		}},
	}
	back := ir.CanisterSpec{
		Name:  "back",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name: "slow",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpWork, Millis: 15000},
				{Kind: ir.OpAdd, Cell: "count", Delta: 1},
			},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{front, back})

	id, err := eng.Submit(SubmitRequest{Method: "front.ask", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(id)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeReplied, out.Case, "caller continues after the deadline")
	assert.Equal(t, int64(5000), out.DoneAt, "caller resolved at the deadline, not the reply")

	v, err := eng.DurableRead("front", "last_result")
	require.NoError(t, err)
	res, ok := v.(ir.Record)
	require.True(t, ok)
	assert.Equal(t, ir.Text(ir.OutcomeDeadline), res["case"])

	// The callee ran to completion on its own schedule.
	assert.Equal(t, int64(1), mustInt(t, eng, "back", "count"))
}

func TestUnboundedWaitDeliversLateReply(t *testing.T) {
	front := ir.CanisterSpec{
		Name:  "front",
		Cells: ir.Record{"last_result": ir.Null{}},
		Methods: []ir.MethodSpec{{
			Name: "ask",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpCall, Callee: "back.slow", Var: "r"},
				{Kind: ir.OpSet, Cell: "last_result", Var: "r"},
			},
		}},
	}
	back := ir.CanisterSpec{
		Name:  "back",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name: "slow",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpWork, Millis: 15000},
				{Kind: ir.OpAdd, Cell: "count", Delta: 1},
			},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{front, back})

	id, err := eng.Submit(SubmitRequest{Method: "front.ask", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, _ := eng.Outcome(id)
	assert.Equal(t, ir.OutcomeReplied, out.Case)
	assert.Equal(t, int64(15000), out.DoneAt, "unbounded wait resumes whenever the reply arrives")

	v, err := eng.DurableRead("front", "last_result")
	require.NoError(t, err)
	res := v.(ir.Record)
	assert.Equal(t, ir.Text(ir.OutcomeReplied), res["case"])
}

func TestQueryNeverCommits(t *testing.T) {
	eng := newTestEngine(t, []ir.CanisterSpec{counterSpec()})

	id, err := eng.Submit(SubmitRequest{Method: "counter.get", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(id)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeReplied, out.Case)
	assert.Equal(t, int64(0), mustInt(t, eng, "counter", "count"))
}

func TestRejectAnonymous(t *testing.T) {
	spec := ir.CanisterSpec{
		Name:  "vault",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name:            "bump",
			Kind:            ir.MethodUpdate,
			RejectAnonymous: true,
			Ops:             []ir.Op{{Kind: ir.OpAdd, Cell: "count", Delta: 1}},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{spec})

	id, err := eng.Submit(SubmitRequest{Method: "vault.bump"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(id)
	require.True(t, ok)
	assert.Equal(t, ir.OutcomeRejected, out.Case)
	assert.Contains(t, out.Error, string(CodeAnonymousRejected))
	assert.Equal(t, int64(0), mustInt(t, eng, "vault", "count"))

	id, err = eng.Submit(SubmitRequest{Method: "vault.bump", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))
	out, _ = eng.Outcome(id)
	assert.Equal(t, ir.OutcomeReplied, out.Case)
}

func TestSubmitUnknownTargets(t *testing.T) {
	eng := newTestEngine(t, []ir.CanisterSpec{counterSpec()})

	_, err := eng.Submit(SubmitRequest{Method: "ghost.bump", Caller: "alice"})
	require.Error(t, err)
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeUnknownCanister, ee.Code)

	_, err = eng.Submit(SubmitRequest{Method: "counter.ghost", Caller: "alice"})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeUnknownMethod, ee.Code)
}

func TestSubCallToUnknownMethodRejects(t *testing.T) {
	spec := ir.CanisterSpec{
		Name:  "caller",
		Cells: ir.Record{"result": ir.Null{}},
		Methods: []ir.MethodSpec{{
			Name: "go",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpCall, Callee: "ghost.method", Var: "r"},
				{Kind: ir.OpSet, Cell: "result", Var: "r"},
			},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{spec})

	id, err := eng.Submit(SubmitRequest{Method: "caller.go", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, _ := eng.Outcome(id)
	assert.Equal(t, ir.OutcomeReplied, out.Case, "rejection is a signal, not an abort")

	v, err := eng.DurableRead("caller", "result")
	require.NoError(t, err)
	res := v.(ir.Record)
	assert.Equal(t, ir.Text(ir.OutcomeRejected), res["case"])
}

func TestDepthBudgetStopsMutualRecursion(t *testing.T) {
	ping := ir.CanisterSpec{
		Name:  "ping",
		Cells: ir.Record{"n": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name: "hit",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpAdd, Cell: "n", Delta: 1},
				{Kind: ir.OpCall, Callee: "pong.hit"},
			},
		}},
	}
	pong := ir.CanisterSpec{
		Name:  "pong",
		Cells: ir.Record{"n": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name: "hit",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpAdd, Cell: "n", Delta: 1},
				{Kind: ir.OpCall, Callee: "ping.hit"},
			},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{ping, pong}, WithMaxDepth(4))

	id, err := eng.Submit(SubmitRequest{Method: "ping.hit", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()), "drain must terminate")

	out, ok := eng.Outcome(id)
	require.True(t, ok)
	// The deepest call was rejected; every ancestor still completed and
	// every pre-call increment stayed committed.
	assert.Equal(t, ir.OutcomeReplied, out.Case)
	total := mustInt(t, eng, "ping", "n") + mustInt(t, eng, "pong", "n")
	assert.Equal(t, int64(5), total, "one increment per executed level")
}

func TestStepsBudget(t *testing.T) {
	var ops []ir.Op
	for i := 0; i < 20; i++ {
		ops = append(ops, ir.Op{Kind: ir.OpAdd, Cell: "n", Delta: 1})
	}
	spec := ir.CanisterSpec{
		Name:    "busy",
		Cells:   ir.Record{"n": ir.Int(0)},
		Methods: []ir.MethodSpec{{Name: "spin", Kind: ir.MethodUpdate, Ops: ops}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{spec}, WithMaxSteps(10))

	id, err := eng.Submit(SubmitRequest{Method: "busy.spin", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, _ := eng.Outcome(id)
	assert.Equal(t, ir.OutcomeRejected, out.Case)
	assert.Contains(t, out.Error, string(CodeStepsExceeded))
	assert.Equal(t, int64(0), mustInt(t, eng, "busy", "n"), "single segment discarded whole")
}

func TestReplySurfacesToOutcome(t *testing.T) {
	spec := ir.CanisterSpec{
		Name:  "greeter",
		Cells: ir.Record{},
		Methods: []ir.MethodSpec{{
			Name: "hello",
			Kind: ir.MethodQuery,
			Ops: []ir.Op{
				{Kind: ir.OpReply, Value: ir.Record{"greeting": ir.Text("hi")}},
			},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{spec})

	id, err := eng.Submit(SubmitRequest{Method: "greeter.hello", Caller: "alice"})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, _ := eng.Outcome(id)
	assert.Equal(t, ir.OutcomeReplied, out.Case)
	assert.Equal(t, ir.Text("hi"), out.Reply["greeting"])
}

func TestDeterministicReplayOfSubmissions(t *testing.T) {
	run := func() (string, int64) {
		eng := newTestEngine(t, []ir.CanisterSpec{counterSpec()})
		var lastID string
		for i := 0; i < 5; i++ {
			id, err := eng.Submit(SubmitRequest{
				Method: "counter.bump", Caller: "alice", At: int64(i), Token: "fixed",
			})
			require.NoError(t, err)
			lastID = id
		}
		require.NoError(t, eng.Drain(context.Background()))
		return lastID, mustInt(t, eng, "counter", "count")
	}

	id1, count1 := run()
	id2, count2 := run()
	assert.Equal(t, id1, id2, "same submissions produce identical call IDs")
	assert.Equal(t, count1, count2)
	assert.Equal(t, int64(5), count1)
}

// A segment that accrues work time commits at its virtual end, not when
// its start event happens to be processed. A call running in between
// observes only state committed before its own instant.
func TestWorkDelaysCommitUntilSegmentEnd(t *testing.T) {
	back := ir.CanisterSpec{
		Name:  "back",
		Cells: ir.Record{"count": ir.Int(0), "seen_early": ir.Null{}, "seen_late": ir.Null{}},
		Methods: []ir.MethodSpec{
			{
				Name: "slow",
				Kind: ir.MethodUpdate,
				Ops: []ir.Op{
					{Kind: ir.OpWork, Millis: 15000},
					{Kind: ir.OpAdd, Cell: "count", Delta: 1},
				},
			},
			{
				Name: "snap_early",
				Kind: ir.MethodUpdate,
				Ops: []ir.Op{
					{Kind: ir.OpRead, Cell: "count", Var: "v"},
					{Kind: ir.OpSet, Cell: "seen_early", Var: "v"},
				},
			},
			{
				Name: "snap_late",
				Kind: ir.MethodUpdate,
				Ops: []ir.Op{
					{Kind: ir.OpRead, Cell: "count", Var: "v"},
					{Kind: ir.OpSet, Cell: "seen_late", Var: "v"},
				},
			},
		},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{back})

	_, err := eng.Submit(SubmitRequest{Method: "back.slow", Caller: "alice"})
	require.NoError(t, err)
	early, err := eng.Submit(SubmitRequest{Method: "back.snap_early", Caller: "bob", At: 7000})
	require.NoError(t, err)
	_, err = eng.Submit(SubmitRequest{Method: "back.snap_late", Caller: "bob", At: 16000})
	require.NoError(t, err)
	require.NoError(t, eng.Drain(context.Background()))

	out, ok := eng.Outcome(early)
	require.True(t, ok)
	assert.Equal(t, int64(7000), out.DoneAt)

	// slow's increment belongs to t=15000: invisible at 7000, durable
	// by 16000.
	assert.Equal(t, int64(0), mustInt(t, eng, "back", "seen_early"))
	assert.Equal(t, int64(1), mustInt(t, eng, "back", "seen_late"))
	assert.Equal(t, int64(1), mustInt(t, eng, "back", "count"))
}

// Step counters are scoped to a call tree and released when its last
// call resolves, including a callee that outlives its caller's bounded
// wait. A long-lived engine must not accumulate per-token state.
func TestStepCountersReleasedWhenTreeResolves(t *testing.T) {
	front := ir.CanisterSpec{
		Name: "front",
		Methods: []ir.MethodSpec{{
			Name: "ask",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpCall, Callee: "back.slow", Var: "r", WaitMillis: 5000},
				{Kind: ir.OpReply, Value: ir.Record{}},
			},
		}},
	}
	back := ir.CanisterSpec{
		Name:  "back",
		Cells: ir.Record{"count": ir.Int(0)},
		Methods: []ir.MethodSpec{{
			Name: "slow",
			Kind: ir.MethodUpdate,
			Ops: []ir.Op{
				{Kind: ir.OpWork, Millis: 15000},
				{Kind: ir.OpAdd, Cell: "count", Delta: 1},
			},
		}},
	}
	eng := newTestEngine(t, []ir.CanisterSpec{front, back})

	for i := 0; i < 3; i++ {
		_, err := eng.Submit(SubmitRequest{Method: "front.ask", Caller: "alice", At: int64(i)})
		require.NoError(t, err)
	}
	require.NoError(t, eng.Drain(context.Background()))

	assert.Empty(t, eng.steps, "per-token step counters must be released")
	assert.Empty(t, eng.inflight)
	assert.Equal(t, int64(3), mustInt(t, eng, "back", "count"))
}
