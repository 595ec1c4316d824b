package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RareSkills/icp-for-evm-sub000/internal/compiler"
	"github.com/RareSkills/icp-for-evm-sub000/internal/engine"
	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
	"github.com/RareSkills/icp-for-evm-sub000/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// TokenGenerator allows overriding the call token generator (for
	// testing). If nil, defaults to UUIDv7Generator.
	TokenGenerator engine.TokenGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Start an engine with compiled canister specs",
		Long: `Start the simulator engine with compiled canister specs.

The engine compiles and installs the canisters, opens the SQLite
journal (creating it if it doesn't exist), and starts the single-writer
timeline loop.

Example:
  cansim run --journal ./cansim.db ./specs
  cansim run --journal /tmp/test.db ./demo-specs --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	addEngineFlags(cmd)
	_ = cmd.MarkFlagRequired("journal")

	return cmd
}

func runEngine(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	cfg, err := loadEngineConfig(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if cfg.Journal == "" {
		return NewExitError(ExitCommandError, "a journal path is required")
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Info("compiling specs", "dir", specsDir)
	specs, err := compileSpecs(specsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile specs", err)
	}
	logger.Info("specs compiled", "canisters", len(specs))

	logger.Info("opening journal", "path", cfg.Journal)
	st, err := store.Open(cfg.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing journal", "error", closeErr)
		}
	}()

	tokens := opts.TokenGenerator
	if tokens == nil {
		tokens = engine.UUIDv7Generator{}
	}
	eng, err := engine.New(st, specs, tokens,
		engine.WithLogger(logger),
		engine.WithMaxSteps(cfg.MaxSteps),
		engine.WithMaxDepth(cfg.MaxDepth))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	if err := eng.InstallAll(); err != nil {
		return WrapExitError(ExitCommandError, "failed to install canisters", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("engine starting", "journal", cfg.Journal, "specs_dir", specsDir)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Waiting for submissions...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := eng.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	logger.Info("engine stopped gracefully")
	return nil
}

// compileSpecs loads and compiles all CUE specs from a directory.
func compileSpecs(dir string) ([]ir.CanisterSpec, error) {
	loadResult, loadErrors := compiler.LoadSpecs(dir, compiler.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	if verrs := compiler.ValidateAll(loadResult.Canisters); len(verrs) > 0 {
		return nil, verrs[0]
	}
	return loadResult.Canisters, nil
}
