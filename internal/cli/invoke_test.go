package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_RepliedCall(t *testing.T) {
	specs := writeSpecsDir(t)
	journal := filepath.Join(t.TempDir(), "cansim.db")

	out, err := executeCommand("invoke", "counter.bump",
		"--specs", specs, "--journal", journal,
		"--caller", "alice", "--token", "tok-1")
	require.NoError(t, err)
	assert.Contains(t, out, "case:    replied")
	assert.Contains(t, out, "done at: t=0ms")
}

func TestInvoke_JSONOutput(t *testing.T) {
	specs := writeSpecsDir(t)
	journal := filepath.Join(t.TempDir(), "cansim.db")

	out, err := executeCommand("--format", "json", "invoke", "counter.bump",
		"--specs", specs, "--journal", journal, "--caller", "alice")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "replied", data["case"])
	assert.NotEmpty(t, data["call_id"])
}

func TestInvoke_UnknownMethod(t *testing.T) {
	specs := writeSpecsDir(t)
	journal := filepath.Join(t.TempDir(), "cansim.db")

	_, err := executeCommand("invoke", "counter.missing",
		"--specs", specs, "--journal", journal, "--caller", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "UNKNOWN_METHOD")
}

func TestInvoke_BadArgsJSON(t *testing.T) {
	specs := writeSpecsDir(t)
	journal := filepath.Join(t.TempDir(), "cansim.db")

	_, err := executeCommand("invoke", "counter.bump",
		"--specs", specs, "--journal", journal, "--args", "{not json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvoke_FractionalArgsRejected(t *testing.T) {
	specs := writeSpecsDir(t)
	journal := filepath.Join(t.TempDir(), "cansim.db")

	_, err := executeCommand("invoke", "counter.bump",
		"--specs", specs, "--journal", journal, "--args", `{"amount":1.5}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not an integer")
}

func TestInvoke_AccumulatesAcrossInvocations(t *testing.T) {
	specs := writeSpecsDir(t)
	journal := filepath.Join(t.TempDir(), "cansim.db")

	// Each invocation starts a fresh engine over the same journal.
	// The journal keeps every call; durable state is rebuilt by replay.
	for i := 0; i < 3; i++ {
		_, err := executeCommand("invoke", "counter.bump",
			"--specs", specs, "--journal", journal, "--caller", "alice")
		require.NoError(t, err)
	}

	out, err := executeCommand("replay", "--journal", journal)
	require.NoError(t, err)
	assert.Contains(t, out, "counter:")
	assert.Contains(t, out, "count = 1")
}
