package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/RareSkills/icp-for-evm-sub000/internal/compiler"
	"github.com/RareSkills/icp-for-evm-sub000/internal/engine"
	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
	"github.com/RareSkills/icp-for-evm-sub000/internal/store"
	"github.com/RareSkills/icp-for-evm-sub000/internal/testutil"
)

// Run executes a scenario against a real engine and returns the result.
//
// Each scenario runs in a fresh in-memory journal for isolation, with
// deterministic tokens so repeated runs produce identical traces.
//
// Execution flow:
//  1. Create fresh in-memory journal
//  2. Compile and validate canister specs
//  3. Install all canisters and submit every step
//  4. Drain the timeline to completion
//  5. Validate expect clauses, cross-check the journal, evaluate
//     assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer st.Close()

	specs, err := loadSpecFiles(scenario.Specs)
	if err != nil {
		return nil, err
	}
	if verrs := compiler.ValidateAll(specs); len(verrs) > 0 {
		return nil, fmt.Errorf("invalid specs: %s", verrs[0].Error())
	}

	var tokens engine.TokenGenerator
	if scenario.Token != "" {
		tokens = testutil.NewFixedTokenGenerator(scenario.Token)
	} else {
		tokens = engine.NewSequenceGenerator("scenario")
	}

	eng, err := engine.New(st, specs, tokens,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := eng.InstallAll(); err != nil {
		return nil, fmt.Errorf("failed to install canisters: %w", err)
	}

	ctx := context.Background()
	result := NewResult()

	// Submit every step before draining: a later step with an earlier
	// "at" interleaves with a prior step's suspension, which is the
	// point of virtual-time scheduling.
	type submission struct {
		step   Step
		method ir.MethodRef
		args   ir.Record
		callID string
	}
	subs := make([]submission, 0, len(scenario.Steps))
	for i, step := range scenario.Steps {
		args, err := convertArgs(step.Args)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		method := ir.MethodRef(step.Invoke)
		id, err := eng.Submit(engine.SubmitRequest{
			Method: method,
			Caller: ir.Principal(step.Caller),
			Args:   args,
			At:     step.At,
		})
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: submit %s: %w", i, step.Invoke, err)
		}
		subs = append(subs, submission{step: step, method: method, args: args, callID: id})
	}

	if err := eng.Drain(ctx); err != nil {
		return nil, fmt.Errorf("drain: %w", err)
	}

	// Trace and expect validation, in step order.
	for i, sub := range subs {
		result.AddCallTrace(sub.method, ir.Principal(sub.step.Caller), sub.args, sub.step.At)

		out, ok := eng.Outcome(sub.callID)
		if !ok {
			result.AddError(fmt.Sprintf("steps[%d]: %s never resolved", i, sub.step.Invoke))
			continue
		}
		result.AddOutcomeTrace(sub.method, out)

		if err := checkExpect(i, sub.step, out); err != nil {
			result.AddError(err.Error())
		}
	}

	// Final durable state, straight from the commit log.
	for _, spec := range specs {
		state, err := eng.State(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("read state of %s: %w", spec.Name, err)
		}
		result.State[spec.Name] = state
	}

	// The journal must agree with the in-memory commit log: replaying
	// committed write rows rebuilds exactly the cells that were written.
	for _, spec := range specs {
		rebuilt, err := st.RebuildState(ctx, spec.Name)
		if err != nil {
			return nil, fmt.Errorf("rebuild %s: %w", spec.Name, err)
		}
		for cell, val := range rebuilt {
			live := result.State[spec.Name][cell]
			if !ir.Equal(val, live) {
				result.AddError(fmt.Sprintf(
					"journal divergence: %s.%s is %v in the journal but %v in memory",
					spec.Name, cell, ir.ToGo(val), ir.ToGo(live)))
			}
		}
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// checkExpect validates a step's outcome against its expect clause.
func checkExpect(i int, step Step, out ir.OutcomeRecord) error {
	if step.Expect == nil {
		return nil
	}
	if out.Case != step.Expect.Case {
		return fmt.Errorf("steps[%d]: %s resolved %q, expected %q (error: %s)",
			i, step.Invoke, out.Case, step.Expect.Case, out.Error)
	}
	if step.Expect.At != nil && out.DoneAt != *step.Expect.At {
		return fmt.Errorf("steps[%d]: %s resolved at t=%d, expected t=%d",
			i, step.Invoke, out.DoneAt, *step.Expect.At)
	}
	if step.Expect.Reply != nil {
		want, err := convertArgs(step.Expect.Reply)
		if err != nil {
			return fmt.Errorf("steps[%d].expect.reply: %w", i, err)
		}
		for key, wantVal := range want {
			gotVal, ok := out.Reply[key]
			if !ok {
				return fmt.Errorf("steps[%d]: reply field %q missing", i, key)
			}
			if !ir.Equal(gotVal, wantVal) {
				return fmt.Errorf("steps[%d]: reply field %q is %v, expected %v",
					i, key, ir.ToGo(gotVal), ir.ToGo(wantVal))
			}
		}
	}
	return nil
}

// loadSpecFiles compiles the canisters declared in the given CUE files.
func loadSpecFiles(paths []string) ([]ir.CanisterSpec, error) {
	cueCtx := cuecontext.New()

	var specs []ir.CanisterSpec
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read spec %s: %w", path, err)
		}
		v := cueCtx.CompileBytes(data)
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("compile spec %s: %w", path, err)
		}

		canisters := v.LookupPath(cue.ParsePath("canister"))
		if !canisters.Exists() {
			return nil, fmt.Errorf("spec %s declares no canisters", path)
		}
		iter, err := canisters.Fields()
		if err != nil {
			return nil, fmt.Errorf("spec %s: %w", path, err)
		}
		for iter.Next() {
			spec, err := compiler.CompileCanister(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("spec %s: %w", path, err)
			}
			specs = append(specs, *spec)
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no canisters found in specs")
	}
	return specs, nil
}

// convertArgs converts a YAML-parsed map to a Record. Floats are
// rejected, matching the value domain everywhere else.
func convertArgs(args map[string]any) (ir.Record, error) {
	if args == nil {
		return ir.Record{}, nil
	}
	v, err := ir.FromGo(args)
	if err != nil {
		return nil, err
	}
	return v.(ir.Record), nil
}
