package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenarioTree builds a specs/ + scenarios/ layout the way a real
// project would lay one out, with spec paths relative to the scenario file.
func writeScenarioTree(t *testing.T) (scenariosDir string) {
	t.Helper()
	root := t.TempDir()

	specsDir := filepath.Join(root, "specs")
	require.NoError(t, os.MkdirAll(specsDir, 0755))
	spec := `package specs

canister: counter: {
	cells: count: 0
	methods: {
		bump: {
			ops: [
				{kind: "add", cell: "count", value: 1},
				{kind: "reply", value: {ok: true}},
			]
		}
	}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(specsDir, "counter.cue"), []byte(spec), 0644))

	scenariosDir = filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(scenariosDir, 0755))
	scenario := `name: bump_once
token: tok-test
specs:
  - ../specs/counter.cue
steps:
  - invoke: counter.bump
    caller: alice
    at: 0
    expect:
      case: replied
      reply:
        ok: true
assertions:
  - type: final_state
    canister: counter
    cells:
      count: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(scenariosDir, "bump_once.yaml"), []byte(scenario), 0644))
	return scenariosDir
}

func TestTest_PassingScenario(t *testing.T) {
	dir := writeScenarioTree(t)

	out, err := executeCommand("test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ bump_once")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_FailingScenario(t *testing.T) {
	dir := writeScenarioTree(t)

	scenario := `name: wrong_expect
specs:
  - ../specs/counter.cue
steps:
  - invoke: counter.bump
    caller: alice
    at: 0
    expect:
      case: trapped
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_expect.yaml"), []byte(scenario), 0644))

	out, err := executeCommand("test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_expect")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := executeCommand("test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_FilterNoMatch(t *testing.T) {
	dir := writeScenarioTree(t)

	out, err := executeCommand("test", dir, "--filter", "nope*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_UpdateThenCompareGolden(t *testing.T) {
	dir := writeScenarioTree(t)

	out, err := executeCommand("test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ bump_once (golden updated)")

	goldenPath := filepath.Join(dir, "golden", "bump_once.golden")
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"bump_once"`)
	assert.Contains(t, string(data), `"token":"tok-test"`)

	// The regenerated golden must match a fresh run byte for byte.
	out, err = executeCommand("test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_StaleGoldenFails(t *testing.T) {
	dir := writeScenarioTree(t)

	goldenDir := filepath.Join(dir, "golden")
	require.NoError(t, os.MkdirAll(goldenDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "bump_once.golden"),
		[]byte(`{"scenario_name":"bump_once","trace":[]}`), 0644))

	out, err := executeCommand("test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTest_JSONOutput(t *testing.T) {
	dir := writeScenarioTree(t)

	out, err := executeCommand("--format", "json", "test", dir)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	payload, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result TestResult
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "bump_once", result.Scenarios[0].Name)
	assert.True(t, result.Scenarios[0].Pass)
}
