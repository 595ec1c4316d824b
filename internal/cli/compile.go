package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RareSkills/icp-for-evm-sub000/internal/compiler"
	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled canisters and their identity hash.
type CompilationResult struct {
	Canisters []ir.CanisterSpec `json:"canisters"`
	SpecHash  string            `json:"spec_hash"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	CanisterCount int
	TotalMethods  int
	TotalCells    int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE specs to canonical IR",
		Long: `Compile CUE canister specs to canonical IR format.

The compiler parses CUE files, validates them against the IR schema,
and outputs canonical JSON plus the spec hash that journal rows carry.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := compiler.LoadSpecs(specsDir, compiler.LoadModeCollectAll)

	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *compiler.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCompileError(formatter, compiler.ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	for _, spec := range loadResult.Canisters {
		formatter.VerboseLog("Compiling canister: %s", spec.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	specHash, err := ir.SpecHash(loadResult.Canisters)
	if err != nil {
		return outputCompileError(formatter, compiler.ErrCodeGeneric, fmt.Sprintf("hashing specs: %v", err))
	}

	result := &CompilationResult{
		Canisters: loadResult.Canisters,
		SpecHash:  specHash,
	}
	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, compiler.ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from a compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{
		CanisterCount: len(result.Canisters),
	}
	for _, spec := range result.Canisters {
		stats.TotalMethods += len(spec.Methods)
		stats.TotalCells += len(spec.Cells)
	}
	return stats
}

// writeIRToFile writes the compiled IR as canonical JSON.
func writeIRToFile(result *CompilationResult, path string) error {
	canisters := make(ir.Vec, len(result.Canisters))
	for i, spec := range result.Canisters {
		canisters[i] = spec.CanonicalRecord()
	}

	data, err := ir.MarshalCanonical(ir.Record{
		"canisters": canisters,
		"spec_hash": ir.Text(result.SpecHash),
	})
	if err != nil {
		return fmt.Errorf("canonical encoding: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d canister(s): %d method(s), %d cell(s)\n",
		stats.CanisterCount, stats.TotalMethods, stats.TotalCells)
	fmt.Fprintf(formatter.Writer, "  spec hash: %s\n", result.SpecHash)
	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "  wrote %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compile error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compile errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		details := make([]string, len(errs))
		for i, err := range errs {
			details[i] = err.Error()
		}
		_ = formatter.Error(compiler.ErrCodeBuildFailed, fmt.Sprintf("compilation failed with %d error(s)", len(errs)), details)
		return NewExitError(ExitFailure, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %v\n", err)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}
