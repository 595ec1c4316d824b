package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCall(id, token string) ir.CallRecord {
	return ir.CallRecord{
		ID:            id,
		Token:         token,
		Method:        "counter.bump",
		Kind:          ir.MethodUpdate,
		Caller:        "alice",
		Args:          ir.Record{"n": ir.Int(1)},
		Seq:           1,
		SubmitAt:      0,
		SpecHash:      "spec-hash",
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.WriteCall(context.Background(), testCall("call-1", "tok-1")))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.ReadCall(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rec.Token)
}

func TestCallRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	orig := testCall("call-1", "tok-1")
	require.NoError(t, s.WriteCall(ctx, orig))

	got, err := s.ReadCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Method, got.Method)
	assert.Equal(t, orig.Caller, got.Caller)
	assert.Equal(t, ir.Int(1), got.Args["n"])
	assert.Equal(t, orig.SpecHash, got.SpecHash)
}

func TestWriteCallIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := testCall("call-1", "tok-1")
	require.NoError(t, s.WriteCall(ctx, rec))
	require.NoError(t, s.WriteCall(ctx, rec), "duplicate write must not error")

	tree, err := s.ReadCallTree(ctx, "tok-1")
	require.NoError(t, err)
	assert.Len(t, tree, 1)
}

func TestReadCallNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ReadCall(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCallTreeOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	top := testCall("call-top", "tok-1")
	top.Seq = 1
	sub := testCall("call-sub", "tok-1")
	sub.Parent = "call-top"
	sub.Method = "remote.bump"
	sub.Caller = "counter"
	sub.Seq = 5

	// Insert out of order; reads are seq-ordered regardless.
	require.NoError(t, s.WriteCall(ctx, sub))
	require.NoError(t, s.WriteCall(ctx, top))

	tree, err := s.ReadCallTree(ctx, "tok-1")
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "call-top", tree[0].ID)
	assert.Equal(t, "call-sub", tree[1].ID)
	assert.Equal(t, "call-top", tree[1].Parent)
}

func TestSegmentAndCheckpointRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteCall(ctx, testCall("call-1", "tok-1")))
	require.NoError(t, s.WriteSegment(ctx, ir.SegmentRecord{
		ID: "seg-0", CallID: "call-1", Index: 0, Kind: ir.SegmentExec, Status: ir.SegmentCommitted, Seq: 2,
	}))
	require.NoError(t, s.WriteSegment(ctx, ir.SegmentRecord{
		ID: "seg-2", CallID: "call-1", Index: 2, Kind: ir.SegmentExec, Status: ir.SegmentDiscarded, Seq: 4,
		Error: "TRAP: boom",
	}))
	require.NoError(t, s.WriteCheckpoint(ctx, ir.CheckpointRecord{
		ID: "cp-1", CallID: "call-1", SegmentID: "seg-0", Reason: ir.CheckpointPreCall, Seq: 3,
	}))

	segs, err := s.ReadSegments(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, ir.SegmentCommitted, segs[0].Status)
	assert.Equal(t, "TRAP: boom", segs[1].Error)

	cps, err := s.ReadCheckpoints(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, ir.CheckpointPreCall, cps[0].Reason)
}

func TestCheckpointUniquePerSegment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteCall(ctx, testCall("call-1", "tok-1")))
	require.NoError(t, s.WriteSegment(ctx, ir.SegmentRecord{
		ID: "seg-0", CallID: "call-1", Index: 0, Kind: ir.SegmentExec, Status: ir.SegmentCommitted, Seq: 2,
	}))
	require.NoError(t, s.WriteCheckpoint(ctx, ir.CheckpointRecord{
		ID: "cp-1", CallID: "call-1", SegmentID: "seg-0", Reason: ir.CheckpointPreCall, Seq: 3,
	}))
	// A second checkpoint for the same segment is silently dropped.
	require.NoError(t, s.WriteCheckpoint(ctx, ir.CheckpointRecord{
		ID: "cp-2", CallID: "call-1", SegmentID: "seg-0", Reason: ir.CheckpointCallEnd, Seq: 9,
	}))

	cps, err := s.ReadCheckpoints(ctx, "call-1")
	require.NoError(t, err)
	assert.Len(t, cps, 1)
}

func TestOutcomeUniquePerCall(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteCall(ctx, testCall("call-1", "tok-1")))
	require.NoError(t, s.WriteOutcome(ctx, ir.OutcomeRecord{
		ID: "out-1", CallID: "call-1", Case: ir.OutcomeReplied, Reply: ir.Record{"ok": ir.Bool(true)}, Seq: 5, DoneAt: 10,
	}))
	// Second outcome for the same call is silently dropped.
	require.NoError(t, s.WriteOutcome(ctx, ir.OutcomeRecord{
		ID: "out-2", CallID: "call-1", Case: ir.OutcomeTrapped, Reply: ir.Record{}, Seq: 6, DoneAt: 11,
	}))

	out, err := s.ReadOutcome(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "out-1", out.ID)
	assert.Equal(t, ir.OutcomeReplied, out.Case)
	assert.Equal(t, ir.Bool(true), out.Reply["ok"])
	assert.Equal(t, int64(10), out.DoneAt)
}

func TestCellWritesAndRebuild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteCall(ctx, testCall("call-1", "tok-1")))
	require.NoError(t, s.WriteSegment(ctx, ir.SegmentRecord{
		ID: "seg-0", CallID: "call-1", Index: 0, Kind: ir.SegmentExec, Status: ir.SegmentCommitted, Seq: 2,
	}))
	require.NoError(t, s.WriteSegment(ctx, ir.SegmentRecord{
		ID: "seg-2", CallID: "call-1", Index: 2, Kind: ir.SegmentExec, Status: ir.SegmentCommitted, Seq: 6,
	}))

	writes := []ir.WriteRecord{
		{CallID: "call-1", SegmentID: "seg-0", Canister: "counter", Cell: "count", Value: ir.Int(1), Seq: 3},
		{CallID: "call-1", SegmentID: "seg-2", Canister: "counter", Cell: "count", Value: ir.Int(2), Seq: 7},
		{CallID: "call-1", SegmentID: "seg-2", Canister: "counter", Cell: "label", Value: ir.Text("done"), Seq: 8},
	}
	require.NoError(t, s.WriteCellWrites(ctx, writes))
	require.NoError(t, s.WriteCellWrites(ctx, writes), "replayed writes must be idempotent")

	got, err := s.ReadWrites(ctx, "counter")
	require.NoError(t, err)
	require.Len(t, got, 3, "idempotent replay must not duplicate rows")

	state, err := s.RebuildState(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, ir.Int(2), state["count"], "later seq wins")
	assert.Equal(t, ir.Text("done"), state["label"])
}

func TestVerifyState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteCall(ctx, testCall("call-1", "tok-1")))
	require.NoError(t, s.WriteSegment(ctx, ir.SegmentRecord{
		ID: "seg-0", CallID: "call-1", Index: 0, Kind: ir.SegmentExec, Status: ir.SegmentCommitted, Seq: 2,
	}))
	require.NoError(t, s.WriteCellWrites(ctx, []ir.WriteRecord{
		{CallID: "call-1", SegmentID: "seg-0", Canister: "counter", Cell: "count", Value: ir.Int(3), Seq: 3},
	}))

	mismatches, err := s.VerifyState(ctx, "counter", map[string]ir.Value{"count": ir.Int(3)})
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	mismatches, err = s.VerifyState(ctx, "counter", map[string]ir.Value{"count": ir.Int(4)})
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Contains(t, mismatches[0], "counter.count")
}

func TestMaxSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, s.WriteCall(ctx, testCall("call-1", "tok-1")))
	require.NoError(t, s.WriteOutcome(ctx, ir.OutcomeRecord{
		ID: "out-1", CallID: "call-1", Case: ir.OutcomeReplied, Reply: ir.Record{}, Seq: 42, DoneAt: 0,
	}))

	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}

func TestLargeIntRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	big := ir.Int(1 << 60)
	rec := testCall("call-1", "tok-1")
	rec.Args = ir.Record{"n": big}
	require.NoError(t, s.WriteCall(ctx, rec))

	got, err := s.ReadCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, big, got.Args["n"], "integers beyond 2^53 must not lose precision")
}
