package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/RareSkills/icp-for-evm-sub000/internal/engine"
	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
	"github.com/RareSkills/icp-for-evm-sub000/internal/store"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Specs  string
	Caller string
	Args   string
	At     int64
	Token  string
}

// InvokeResult holds a resolved call for output.
type InvokeResult struct {
	CallID string    `json:"call_id"`
	Case   string    `json:"case"`
	Reply  ir.Record `json:"reply"`
	Error  string    `json:"error,omitempty"`
	DoneAt int64     `json:"done_at"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <canister.method>",
		Short: "Submit one call and print its outcome",
		Long: `Submit a single top-level call, drain the timeline, and print the
resolved outcome. The call and everything it caused are journaled.

Example:
  cansim invoke counter.bump --specs ./specs --journal ./cansim.db --caller alice
  cansim invoke ledger.transfer --specs ./specs --journal ./cansim.db \
      --args '{"to":"bob","amount":5}' --at 1000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, args[0], cmd)
		},
	}

	addEngineFlags(cmd)
	cmd.Flags().StringVar(&opts.Specs, "specs", "", "path to the CUE specs directory (required)")
	_ = cmd.MarkFlagRequired("specs")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "calling principal (empty means anonymous)")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "call arguments as JSON")
	cmd.Flags().Int64Var(&opts.At, "at", 0, "virtual submission time in ms")
	cmd.Flags().StringVar(&opts.Token, "token", "", "fixed correlation token (default: generated UUIDv7)")

	return cmd
}

func runInvoke(opts *InvokeOptions, method string, cmd *cobra.Command) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	args, err := parseArgsJSON(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

	specs, err := compileSpecs(opts.Specs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile specs", err)
	}

	st, err := store.Open(cfg.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	var tokens engine.TokenGenerator = engine.UUIDv7Generator{}
	eng, err := engine.New(st, specs, tokens,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithMaxSteps(cfg.MaxSteps),
		engine.WithMaxDepth(cfg.MaxDepth))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	if err := eng.InstallAll(); err != nil {
		return WrapExitError(ExitCommandError, "failed to install canisters", err)
	}

	callID, err := eng.Submit(engine.SubmitRequest{
		Method: ir.MethodRef(method),
		Caller: ir.Principal(opts.Caller),
		Args:   args,
		At:     opts.At,
		Token:  opts.Token,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("submit %s", method), err)
	}

	if err := eng.Drain(context.Background()); err != nil {
		return WrapExitError(ExitFailure, "drain", err)
	}

	out, ok := eng.Outcome(callID)
	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("call %s never resolved", callID))
	}

	result := InvokeResult{
		CallID: out.CallID,
		Case:   out.Case,
		Reply:  out.Reply,
		Error:  out.Error,
		DoneAt: out.DoneAt,
	}
	if err := outputInvokeResult(opts, cmd, result); err != nil {
		return err
	}

	// A failed call is a journaled fact, not a command error, but the
	// exit code should still say it failed.
	if out.Case != ir.OutcomeReplied {
		return NewExitError(ExitFailure, fmt.Sprintf("call resolved %s", out.Case))
	}
	return nil
}

// parseArgsJSON decodes a JSON object into call arguments. Integer-only
// decoding: fractional numbers are rejected like everywhere else.
func parseArgsJSON(s string) (ir.Record, error) {
	return ir.UnmarshalRecord([]byte(s))
}

func outputInvokeResult(opts *InvokeOptions, cmd *cobra.Command, result InvokeResult) error {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(CLIResponse{Status: "ok", Data: result})
	}

	fmt.Fprintf(w, "call %s\n", result.CallID)
	fmt.Fprintf(w, "  case:    %s\n", result.Case)
	fmt.Fprintf(w, "  done at: t=%dms\n", result.DoneAt)
	if len(result.Reply) > 0 {
		fmt.Fprintf(w, "  reply:   %v\n", ir.ToGo(result.Reply))
	}
	if result.Error != "" {
		fmt.Fprintf(w, "  error:   %s\n", result.Error)
	}
	return nil
}
