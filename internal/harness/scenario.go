package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios submit a sequence of top-level calls against compiled
// canister specs and assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists paths to CUE spec files to compile and install.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Steps contains the calls to submit, with optional expected
	// outcomes. Steps are submitted before any executes, so a later
	// step with a smaller "at" interleaves with an earlier one's
	// suspension.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// Token is an optional fixed correlation token for deterministic
	// golden comparison. If empty, a per-step sequence token is used.
	Token string `yaml:"token,omitempty"`
}

// Step represents one top-level call submission.
type Step struct {
	// Invoke is the method reference, "canister.method".
	Invoke string `yaml:"invoke"`

	// Caller is the calling principal. Empty means anonymous.
	Caller string `yaml:"caller,omitempty"`

	// At is the virtual time (ms) the call arrives.
	At int64 `yaml:"at,omitempty"`

	// Args contains the call arguments as a map.
	// Values are converted to ir values during execution.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, no validation is performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected call resolution.
type ExpectClause struct {
	// Case is the expected outcome case: "replied", "trapped",
	// "rejected", or "deadline_expired".
	Case string `yaml:"case"`

	// Reply contains expected reply field values.
	// Subset match - only specified fields are validated.
	Reply map[string]any `yaml:"reply,omitempty"`

	// At is the expected virtual resolution time in ms. Pointer so 0 is
	// distinguishable from absent.
	At *int64 `yaml:"at,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check a call appears in trace with args
	// - "trace_order": Check calls appear in order
	// - "trace_count": Check a method appears exactly N times
	// - "final_state": Check a canister's final cell values
	Type string `yaml:"type"`

	// Method is the method reference (trace_contains, trace_count).
	Method string `yaml:"method,omitempty"`

	// Args are the expected call arguments (trace_contains).
	// Subset match - only specified fields are validated.
	Args map[string]any `yaml:"args,omitempty"`

	// Methods is the expected call order (trace_order).
	Methods []string `yaml:"methods,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Canister names the canister to inspect (final_state).
	Canister string `yaml:"canister,omitempty"`

	// Cells contains expected final cell values (final_state).
	// Subset match - only specified cells are validated.
	Cells map[string]any `yaml:"cells,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	// Validate spec paths exist
	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	// Validate steps
	for i, step := range s.Steps {
		if step.Invoke == "" {
			return fmt.Errorf("steps[%d]: invoke is required", i)
		}
		if step.At < 0 {
			return fmt.Errorf("steps[%d]: at must be non-negative", i)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("steps[%d].expect: case is required", i)
		}
	}

	// Validate assertions
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Canister == "" {
			return fmt.Errorf("assertions[%d]: canister is required for final_state", index)
		}
		if len(a.Cells) == 0 {
			return fmt.Errorf("assertions[%d]: cells is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
