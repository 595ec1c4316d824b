package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ReadCall returns one call record by ID.
func (s *Store) ReadCall(ctx context.Context, id string) (ir.CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token, parent, method, kind, caller, args, seq, submit_at,
		       spec_hash, engine_version, ir_version
		FROM calls WHERE id = ?
	`, id)
	rec, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.CallRecord{}, fmt.Errorf("read call %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.CallRecord{}, fmt.Errorf("read call %s: %w", id, err)
	}
	return rec, nil
}

// ReadCallTree returns every call sharing a correlation token, in
// deterministic (seq, id) order. The first row is the top-level call.
func (s *Store) ReadCallTree(ctx context.Context, token string) ([]ir.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, parent, method, kind, caller, args, seq, submit_at,
		       spec_hash, engine_version, ir_version
		FROM calls WHERE token = ?
		ORDER BY seq ASC, id ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("read call tree: %w", err)
	}
	defer rows.Close()

	var recs []ir.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("read call tree: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read call tree: %w", err)
	}
	return recs, nil
}

// ReadSegments returns a call's resolved segments in index order.
func (s *Store) ReadSegments(ctx context.Context, callID string) ([]ir.SegmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, idx, kind, status, seq, error
		FROM segments WHERE call_id = ?
		ORDER BY idx ASC
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("read segments: %w", err)
	}
	defer rows.Close()

	var recs []ir.SegmentRecord
	for rows.Next() {
		var rec ir.SegmentRecord
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.Index, &rec.Kind, &rec.Status, &rec.Seq, &rec.Error); err != nil {
			return nil, fmt.Errorf("read segments: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read segments: %w", err)
	}
	return recs, nil
}

// ReadCheckpoints returns a call's checkpoints in seq order.
func (s *Store) ReadCheckpoints(ctx context.Context, callID string) ([]ir.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, segment_id, reason, seq
		FROM checkpoints WHERE call_id = ?
		ORDER BY seq ASC
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	defer rows.Close()

	var recs []ir.CheckpointRecord
	for rows.Next() {
		var rec ir.CheckpointRecord
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.SegmentID, &rec.Reason, &rec.Seq); err != nil {
			return nil, fmt.Errorf("read checkpoints: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoints: %w", err)
	}
	return recs, nil
}

// ReadOutcome returns a call's resolution.
func (s *Store) ReadOutcome(ctx context.Context, callID string) (ir.OutcomeRecord, error) {
	var rec ir.OutcomeRecord
	var replyJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, call_id, case_name, reply, error, seq, done_at
		FROM outcomes WHERE call_id = ?
	`, callID).Scan(&rec.ID, &rec.CallID, &rec.Case, &replyJSON, &rec.Error, &rec.Seq, &rec.DoneAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.OutcomeRecord{}, fmt.Errorf("read outcome for %s: %w", callID, ErrNotFound)
	}
	if err != nil {
		return ir.OutcomeRecord{}, fmt.Errorf("read outcome: %w", err)
	}
	rec.Reply, err = unmarshalRecord(replyJSON)
	if err != nil {
		return ir.OutcomeRecord{}, fmt.Errorf("read outcome: %w", err)
	}
	return rec, nil
}

// ReadWrites returns a canister's committed cell writes in seq order.
// Passing canister == "" returns all canisters' writes.
func (s *Store) ReadWrites(ctx context.Context, canister string) ([]ir.WriteRecord, error) {
	query := `
		SELECT call_id, segment_id, canister, cell, value, seq
		FROM cell_writes
	`
	var args []any
	if canister != "" {
		query += ` WHERE canister = ?`
		args = append(args, canister)
	}
	query += ` ORDER BY seq ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read writes: %w", err)
	}
	defer rows.Close()

	var recs []ir.WriteRecord
	for rows.Next() {
		var rec ir.WriteRecord
		var valueJSON string
		if err := rows.Scan(&rec.CallID, &rec.SegmentID, &rec.Canister, &rec.Cell, &valueJSON, &rec.Seq); err != nil {
			return nil, fmt.Errorf("read writes: %w", err)
		}
		rec.Value, err = unmarshalValue(valueJSON)
		if err != nil {
			return nil, fmt.Errorf("read writes: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read writes: %w", err)
	}
	return recs, nil
}

// MaxSeq returns the highest sequence number in the journal, 0 when
// empty. Used to position the clock when continuing a journal.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var top sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM calls
			UNION ALL SELECT seq FROM segments
			UNION ALL SELECT seq FROM checkpoints
			UNION ALL SELECT seq FROM cell_writes
			UNION ALL SELECT seq FROM outcomes
		)
	`).Scan(&top)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	if !top.Valid {
		return 0, nil
	}
	return top.Int64, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (ir.CallRecord, error) {
	var rec ir.CallRecord
	var parent sql.NullString
	var method, kind, caller, argsJSON string
	err := row.Scan(&rec.ID, &rec.Token, &parent, &method, &kind, &caller,
		&argsJSON, &rec.Seq, &rec.SubmitAt, &rec.SpecHash, &rec.EngineVersion, &rec.IRVersion)
	if err != nil {
		return ir.CallRecord{}, err
	}
	rec.Parent = parent.String
	rec.Method = ir.MethodRef(method)
	rec.Kind = ir.MethodKind(kind)
	rec.Caller = ir.Principal(caller)
	rec.Args, err = unmarshalRecord(argsJSON)
	if err != nil {
		return ir.CallRecord{}, err
	}
	return rec, nil
}
