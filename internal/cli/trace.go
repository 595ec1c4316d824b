package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
	"github.com/RareSkills/icp-for-evm-sub000/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	Token   string
}

// TraceCall is one call of a call tree, with its spans and resolution.
type TraceCall struct {
	ID          string                `json:"id"`
	Parent      string                `json:"parent,omitempty"`
	Method      ir.MethodRef          `json:"method"`
	Kind        ir.MethodKind         `json:"kind"`
	Caller      ir.Principal          `json:"caller"`
	SubmitAt    int64                 `json:"submit_at"`
	Segments    []ir.SegmentRecord    `json:"segments,omitempty"`
	Checkpoints []ir.CheckpointRecord `json:"checkpoints,omitempty"`
	Outcome     *ir.OutcomeRecord     `json:"outcome,omitempty"`
}

// TraceResult holds the complete trace output for one token.
type TraceResult struct {
	Token string      `json:"token"`
	Calls []TraceCall `json:"calls"`
	Stats TraceStats  `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalCalls        int `json:"total_calls"`
	CommittedSegments int `json:"committed_segments"`
	DiscardedSegments int `json:"discarded_segments"`
	Checkpoints       int `json:"checkpoints"`
	Unresolved        int `json:"unresolved"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect the journaled call tree for a token",
		Long: `Inspect the journal for everything a correlation token caused.

Shows each call in submission order with its segments (committed and
discarded), its checkpoints, and its resolution. The discarded segments
are the rollbacks; the committed ones are what still holds.

Examples:
  cansim trace --journal ./cansim.db --token 0191e9a2-...
  cansim trace --journal ./cansim.db --token run-42 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Token, "token", "", "correlation token (required)")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts.Token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	if len(result.Calls) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no calls journaled for token %q", opts.Token))
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}
	return outputTraceText(cmd, result)
}

// buildTrace assembles the call tree with spans and outcomes.
func buildTrace(ctx context.Context, st *store.Store, token string) (TraceResult, error) {
	result := TraceResult{Token: token}

	calls, err := st.ReadCallTree(ctx, token)
	if err != nil {
		return result, err
	}

	for _, call := range calls {
		tc := TraceCall{
			ID:       call.ID,
			Parent:   call.Parent,
			Method:   call.Method,
			Kind:     call.Kind,
			Caller:   call.Caller,
			SubmitAt: call.SubmitAt,
		}

		tc.Segments, err = st.ReadSegments(ctx, call.ID)
		if err != nil {
			return result, err
		}
		tc.Checkpoints, err = st.ReadCheckpoints(ctx, call.ID)
		if err != nil {
			return result, err
		}

		out, err := st.ReadOutcome(ctx, call.ID)
		switch {
		case err == nil:
			tc.Outcome = &out
		case errors.Is(err, store.ErrNotFound):
			result.Stats.Unresolved++
		default:
			return result, err
		}

		for _, seg := range tc.Segments {
			switch seg.Status {
			case ir.SegmentCommitted:
				result.Stats.CommittedSegments++
			case ir.SegmentDiscarded:
				result.Stats.DiscardedSegments++
			}
		}
		result.Stats.Checkpoints += len(tc.Checkpoints)
		result.Calls = append(result.Calls, tc)
	}
	result.Stats.TotalCalls = len(result.Calls)

	return result, nil
}

func outputTraceText(cmd *cobra.Command, result TraceResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "token %s\n\n", result.Token)
	for _, call := range result.Calls {
		depthMark := ""
		if call.Parent != "" {
			depthMark = "  └ "
		}
		fmt.Fprintf(w, "%s%s (%s) caller=%s submit=t%d\n",
			depthMark, call.Method, call.Kind, call.Caller, call.SubmitAt)

		for _, seg := range call.Segments {
			line := fmt.Sprintf("    segment %d [%s] %s", seg.Index, seg.Kind, seg.Status)
			if seg.Error != "" {
				line += " error=" + seg.Error
			}
			fmt.Fprintln(w, line)
		}
		for _, cp := range call.Checkpoints {
			fmt.Fprintf(w, "    checkpoint %s\n", cp.Reason)
		}
		if call.Outcome != nil {
			fmt.Fprintf(w, "    outcome %s at t%d\n", call.Outcome.Case, call.Outcome.DoneAt)
		} else {
			fmt.Fprintln(w, "    outcome (unresolved)")
		}
	}

	fmt.Fprintf(w, "\n%d call(s), %d committed segment(s), %d discarded, %d checkpoint(s)\n",
		result.Stats.TotalCalls, result.Stats.CommittedSegments,
		result.Stats.DiscardedSegments, result.Stats.Checkpoints)
	return nil
}
