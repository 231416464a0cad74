package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.TxID)
}

func TestOutputFormatter_JSONSuccessTx(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.SuccessTx("tx-7", LimitView{Limit: 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "tx-7", resp.TxID)
	assert.Equal(t, map[string]any{"limit": float64(3)}, resp.Data)
}

func TestOutputFormatter_TextSuccessUsesStringer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.SuccessTx("tx-7", LimitView{Limit: 3}))
	assert.Equal(t, "account limit: 3\ntx: tx-7\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "no such transaction", map[string]string{"id": "tx-9"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "no such transaction", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("E", "boom", "hidden"))
	assert.Equal(t, "Error [E]: boom\n", buf.String(), "details only in verbose mode")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E", "boom", "shown"))
	assert.Contains(t, buf.String(), "Details: shown")
}

func TestOutputFormatter_Revert(t *testing.T) {
	t.Run("revert code becomes error code", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		revert := chain.Revert(chain.CodeLimitExceeded, chain.ZeroAddress, "limit reached").WithDetail("limit", "2")
		err := formatter.Revert("provisioning failed", revert)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.True(t, chain.IsRevert(err, chain.CodeLimitExceeded), "revert stays reachable")

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "LIMIT_EXCEEDED", resp.Error.Code)
		assert.Equal(t, map[string]any{"limit": "2"}, resp.Error.Details)
	})

	t.Run("plain error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		err := formatter.Revert("status failed", errors.New("disk gone"))
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ERROR", resp.Error.Code)
		assert.Nil(t, resp.Error.Details)
	})
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())

	assert.Equal(t, out, (&OutputFormatter{Writer: out}).GetErrWriter())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitCommandError, "failed to open database", errors.New("locked"))
	assert.Equal(t, "failed to open database: locked", wrapped.Error())
	assert.Equal(t, "locked", errors.Unwrap(wrapped).Error())
}
