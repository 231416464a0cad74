package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "beamio", cmd.Use)
	assert.Contains(t, cmd.Long, "CREATE2")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"init", "predict", "provision", "status", "authorize", "limit", "transfer-admin",
		"bind", "routes", "migrate", "collection", "trace", "probe", "test",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestCollectionSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"create", "list", "predict"} {
		sub, _, err := cmd.Find([]string{"collection", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "beamio.db", dbFlag.DefValue)
}

func TestProvisionCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	provisionCmd, _, err := cmd.Find([]string{"provision"})
	require.NoError(t, err)

	for _, name := range []string{"from", "next", "self"} {
		assert.NotNil(t, provisionCmd.Flags().Lookup(name), name)
	}
}

func TestPredictCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	predictCmd, _, err := cmd.Find([]string{"predict"})
	require.NoError(t, err)

	indexFlag := predictCmd.Flags().Lookup("index")
	require.NotNil(t, indexFlag)
	assert.Equal(t, "-1", indexFlag.DefValue)
}

func TestProbeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	probeCmd, _, err := cmd.Find([]string{"probe"})
	require.NoError(t, err)

	accountsFlag := probeCmd.Flags().Lookup("accounts")
	require.NotNil(t, accountsFlag)
	assert.Equal(t, "1", accountsFlag.DefValue)
	assert.NotNil(t, probeCmd.Flags().Lookup("rpc"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "--db", t.TempDir() + "/ledger.db", "status", "0x00000000000000000000000000000000000000c1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestEnvironmentDefaults(t *testing.T) {
	t.Setenv("BEAMIO_FORMAT", "json")
	t.Setenv("BEAMIO_LOG_LEVEL", "shout")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", t.TempDir() + "/ledger.db", "status", "0x00000000000000000000000000000000000000c1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid environment")
}
