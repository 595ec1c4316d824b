package store

import (
	"context"
	"fmt"

	"github.com/RareSkills/icp-for-evm-sub000/internal/engine"
	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

var _ engine.Journal = (*Store)(nil)

// WriteCall inserts a call record into the journal.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are
// silently ignored. Other constraint violations (e.g., NOT NULL) will
// still return errors.
//
// Args are serialized to canonical JSON per RFC 8785 so a replay of the
// same submissions regenerates identical rows.
func (s *Store) WriteCall(ctx context.Context, rec ir.CallRecord) error {
	argsJSON, err := marshalRecord(rec.Args)
	if err != nil {
		return fmt.Errorf("write call: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calls
		(id, token, parent, method, kind, caller, args, seq, submit_at, spec_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Token,
		rec.Parent,
		string(rec.Method),
		string(rec.Kind),
		string(rec.Caller),
		argsJSON,
		rec.Seq,
		rec.SubmitAt,
		rec.SpecHash,
		rec.EngineVersion,
		rec.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write call: %w", err)
	}

	return nil
}

// WriteSegment inserts a resolved segment row.
// Segment rows exist only for resolved segments: committed or discarded,
// never active.
func (s *Store) WriteSegment(ctx context.Context, rec ir.SegmentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO segments
		(id, call_id, idx, kind, status, seq, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.CallID,
		rec.Index,
		rec.Kind,
		rec.Status,
		rec.Seq,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("write segment: %w", err)
	}
	return nil
}

// WriteCheckpoint inserts a checkpoint row. At most one checkpoint per
// segment (enforced by UNIQUE constraint on segment_id); a duplicate
// write is silently ignored.
func (s *Store) WriteCheckpoint(ctx context.Context, rec ir.CheckpointRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints
		(id, call_id, segment_id, reason, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.ID,
		rec.CallID,
		rec.SegmentID,
		rec.Reason,
		rec.Seq,
	)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// WriteCellWrites inserts the durable mutations of one committed
// segment, all in a single transaction.
func (s *Store) WriteCellWrites(ctx context.Context, recs []ir.WriteRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write cell writes: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, rec := range recs {
		valueJSON, err := marshalValue(rec.Value)
		if err != nil {
			return fmt.Errorf("write cell writes: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cell_writes
			(call_id, segment_id, canister, cell, value, seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(segment_id, cell, seq) DO NOTHING
		`,
			rec.CallID,
			rec.SegmentID,
			rec.Canister,
			rec.Cell,
			valueJSON,
			rec.Seq,
		)
		if err != nil {
			return fmt.Errorf("write cell writes: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write cell writes: commit: %w", err)
	}
	return nil
}

// WriteOutcome inserts a call's resolution.
// Each call has exactly ONE outcome (enforced by UNIQUE constraint on
// call_id); attempting to write a second one silently fails.
func (s *Store) WriteOutcome(ctx context.Context, rec ir.OutcomeRecord) error {
	replyJSON, err := marshalRecord(rec.Reply)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}

	// ON CONFLICT DO NOTHING handles both:
	// 1. Duplicate outcome ID (same outcome written twice)
	// 2. Duplicate call_id (second outcome for same call)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(id, call_id, case_name, reply, error, seq, done_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.ID,
		rec.CallID,
		rec.Case,
		replyJSON,
		rec.Error,
		rec.Seq,
		rec.DoneAt,
	)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}
