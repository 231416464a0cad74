package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shippedScenarios = "../harness/testdata/scenarios"

const failingScenario = `name: wrong-expectation
description: A stranger provisions on someone else's behalf and the flow expects it to commit
system:
  admin: "@admin"
  paymasters: ["@paymaster"]
  account_limit: 1
  account_init_code: "0x6080604052"
flow:
  - op: provision_for
    from: "@mallory"
    args:
      creator: "@alice"
`

func runTestCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

// copyScenarios copies the shipped scenarios into a fresh scenarios/ dir.
func copyScenarios(t *testing.T, names ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(shippedScenarios, name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	buf, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")

	buf, err = runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)
	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandShippedScenarios(t *testing.T) {
	buf, err := runTestCommand(t, "json", shippedScenarios)
	require.NoError(t, err, buf.String())

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, 6, response.Data.Total)
	assert.Equal(t, 6, response.Data.Passed)
	for _, s := range response.Data.Scenarios {
		assert.True(t, s.Pass, "%s: %v", s.Name, s.Errors)
	}
}

func TestTestCommandFilter(t *testing.T) {
	buf, err := runTestCommand(t, "text", shippedScenarios, "--filter", "diamond-*")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ diamond-migration")
	assert.Contains(t, buf.String(), "1 passed, 0 failed, 1 total")

	_, err = runTestCommand(t, "text", shippedScenarios, "--filter", "[")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(failingScenario), 0o644))

	buf, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ wrong-expectation")
	assert.Contains(t, buf.String(), "flow[0] (provision_for): expected status committed, got reverted (NOT_AUTHORIZED)")
	assert.NotContains(t, buf.String(), "invalid scenario")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := copyScenarios(t, "fresh-creator.yaml")
	golden := filepath.Join(filepath.Dir(dir), "golden", "fresh-creator.golden")

	_, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err)
	written, err := os.ReadFile(golden)
	require.NoError(t, err)

	shipped, err := os.ReadFile("../harness/testdata/golden/fresh-creator.golden")
	require.NoError(t, err)
	assert.Equal(t, string(shipped), string(written))

	_, err = runTestCommand(t, "text", dir)
	require.NoError(t, err, "matches the golden it just wrote")

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario":"fresh-creator","trace":[]}`), 0o644))
	buf, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "does not match golden file")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "notes.txt", "nested/c.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}, files)

	files, err = findScenarioFiles(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yml")}, files)
}
