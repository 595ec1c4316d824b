// Package harness provides scenario-driven conformance testing for the
// simulator.
//
// The harness compiles canister specs, submits a scripted sequence of
// external calls into a real engine backed by an in-memory journal, and
// validates the resulting trace and durable state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	token: fixed-token
//	specs:
//	  - path/to/canisters.cue
//	steps:
//	  - invoke: canister.method
//	    caller: alice
//	    at: 0
//	    args: { key: value }
//	    expect:
//	      case: replied
//	      reply: { field: value }
//	      at: 5000
//	assertions:
//	  - type: trace_contains
//	    method: canister.method
//	    args: { key: value }
//	  - type: final_state
//	    canister: canister
//	    cells: { count: 3 }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: a call to the method appears with matching args
//   - trace_order: calls appear in the given relative order
//   - trace_count: a method is called exactly N times
//   - final_state: durable cells hold the expected values
//
// # Deterministic Testing
//
// Scenarios run with a fixed call token (scenario.token) or a sequence
// generator, a virtual-time timeline, and a fresh in-memory SQLite
// journal per run. Identical inputs produce identical traces, which is
// what golden file comparison relies on.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/bounded_wait.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
