package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
	"github.com/RareSkills/icp-for-evm-sub000/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal  string
	Canister string // optional - rebuild a single canister
}

// ReplayCanisterResult holds the rebuilt state for one canister.
type ReplayCanisterResult struct {
	Canister string         `json:"canister"`
	Cells    map[string]any `json:"cells"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Canisters []ReplayCanisterResult `json:"canisters"`
	MaxSeq    int64                  `json:"max_seq"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild durable state from the journal",
		Long: `Replay the journal's committed cell writes in commit order and print
the durable state they rebuild.

The journal only records writes that reached a commit checkpoint, so
the rebuilt state is exactly what survived: provisional writes of
discarded segments never appear.

Exit codes:
  0 - Replay succeeded
  2 - Command error (journal not found, etc.)

Examples:
  cansim replay --journal ./cansim.db
  cansim replay --journal ./cansim.db --canister ledger
  cansim replay --journal ./cansim.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Canister, "canister", "", "rebuild a single canister only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	var states map[string]map[string]ir.Value
	if opts.Canister != "" {
		state, err := st.RebuildState(ctx, opts.Canister)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to rebuild %s", opts.Canister), err)
		}
		states = map[string]map[string]ir.Value{opts.Canister: state}
	} else {
		states, err = st.RebuildAllStates(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to rebuild states", err)
		}
	}

	maxSeq, err := st.MaxSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal sequence", err)
	}

	result := ReplayResult{MaxSeq: maxSeq}
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(states[name]) == 0 {
			continue // filtered canister with no committed writes
		}
		cells := make(map[string]any, len(states[name]))
		for cell, val := range states[name] {
			cells[cell] = ir.ToGo(val)
		}
		result.Canisters = append(result.Canisters, ReplayCanisterResult{
			Canister: name,
			Cells:    cells,
		})
	}

	if opts.Format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}
	return outputReplayText(cmd, result)
}

func outputReplayText(cmd *cobra.Command, result ReplayResult) error {
	w := cmd.OutOrStdout()

	if len(result.Canisters) == 0 {
		fmt.Fprintln(w, "No committed writes in journal.")
		return nil
	}

	for _, canister := range result.Canisters {
		fmt.Fprintf(w, "%s:\n", canister.Canister)
		cells := make([]string, 0, len(canister.Cells))
		for cell := range canister.Cells {
			cells = append(cells, cell)
		}
		sort.Strings(cells)
		for _, cell := range cells {
			fmt.Fprintf(w, "  %s = %v\n", cell, canister.Cells[cell])
		}
	}
	fmt.Fprintf(w, "\njournal sequence high-water mark: %d\n", result.MaxSeq)
	return nil
}
