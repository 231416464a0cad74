package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadShipped(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_ShippedScenariosPass(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".yaml")
		t.Run(name, func(t *testing.T) {
			result, err := Run(context.Background(), loadShipped(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"fresh-creator", "out-of-band"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadShipped(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := loadShipped(t, "account-limits")

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.System, second.System)
}

func TestRun_TraceShape(t *testing.T) {
	result, err := Run(context.Background(), loadShipped(t, "diamond-migration"))
	require.NoError(t, err)
	require.Len(t, result.Trace, 6)

	install := result.Trace[0]
	assert.Equal(t, "install_module", install.Op)
	assert.Equal(t, "$module/token-v2", install.Result["address"])

	skipped := result.Trace[2]
	assert.Equal(t, StatusSkipped, skipped.Status)
	assert.Zero(t, skipped.Seq)
	assert.Empty(t, skipped.Events)

	rejected := result.Trace[3]
	assert.Equal(t, StatusReverted, rejected.Status)
	assert.Equal(t, "NOT_AUTHORIZED", rejected.Code)
	assert.Empty(t, rejected.Events, "reverted steps emit nothing")
}

func TestRun_FailedExpectationsAreReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong-expectations
description: "Every expectation is wrong"
system:
  admin: "@admin"
  paymasters: ["@paymaster"]
  account_limit: 1
  account_init_code: "0x6080604052"
flow:
  - op: provision_for
    from: "@paymaster"
    args: { creator: "@alice" }
    expect:
      result: { prior: REGISTERED, flavour: vanilla }
  - op: provision_for
    from: "@nobody"
    args: { creator: "@alice" }
assertions:
  - type: event_count
    event: AccountCreated
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "result.flavour: missing")
	assert.Contains(t, result.Errors[1], "result.prior: expected REGISTERED, got ABSENT")
	assert.Contains(t, result.Errors[2], "expected status committed, got reverted (NOT_AUTHORIZED)")
	assert.Contains(t, result.Errors[3], "AccountCreated emitted 2 times")
}

func TestRun_BadSystem(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad-system
description: "Init code is not hex"
system:
  admin: "@admin"
  account_limit: 1
  account_init_code: "bytecode"
flow:
  - op: provision_self
    from: "@alice"
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system:")
}

func TestRun_UnknownSymbolAborts(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unknown-symbol
description: "Refers to an account nobody created"
system:
  admin: "@admin"
  account_limit: 1
  account_init_code: "0x6080604052"
flow:
  - op: provision_for
    from: "@admin"
    args: { creator: "@ghost/account/0" }
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `flow[0]: provision_for: arg "creator": unknown symbol`)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, loadShipped(t, "fresh-creator"))
	assert.Error(t, err)
}
