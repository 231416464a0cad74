package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "One provisioning call"
system:
  admin: "@admin"
  paymasters: ["@paymaster"]
  account_limit: 1
  account_init_code: "0x6080604052"
flow:
  - op: provision_for
    from: "@paymaster"
    args:
      creator: "@alice"
`

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, "@admin", s.System.Admin)
	assert.Equal(t, []string{"@paymaster"}, s.System.Paymasters)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, "provision_for", s.Flow[0].Op)
	assert.Equal(t, "@alice", s.Flow[0].Args["creator"])
	assert.Equal(t, dir, s.dir)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_ShippedScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			_, err := LoadScenario(f)
			assert.NoError(t, err)
		})
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a'}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a'}]",
			wantErr: "description is required",
		},
		{
			name:    "missing admin",
			yaml:    "name: n\ndescription: d\nflow: [{op: provision_self, from: '@a'}]",
			wantErr: "system.admin is required",
		},
		{
			name:    "empty flow",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: []",
			wantErr: "flow list is required",
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: [{op: teleport, from: '@a'}]",
			wantErr: `flow[0]: unknown op "teleport"`,
		},
		{
			name:    "missing from",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nsetup: [{op: provision_self}]\nflow: [{op: provision_self, from: '@a'}]",
			wantErr: "setup[0]: from is required",
		},
		{
			name:    "code without reverted status",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a', expect: {code: LIMIT_EXCEEDED}}]",
			wantErr: "code requires status",
		},
		{
			name:    "unknown status",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a', expect: {status: maybe}}]",
			wantErr: `unknown status "maybe"`,
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nflow_token: x\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a'}]",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown query",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a'}]\nassertions: [{type: state, query: balance, expect: 1}]",
			wantErr: `unknown query "balance"`,
		},
		{
			name:    "state without expect",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a'}]\nassertions: [{type: state, query: primary_of}]",
			wantErr: "expect is required",
		},
		{
			name:    "event_count without event",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a'}]\nassertions: [{type: event_count, count: 1}]",
			wantErr: "event is required",
		},
		{
			name:    "event_order without events",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a'}]\nassertions: [{type: event_order}]",
			wantErr: "events list is required",
		},
		{
			name:    "unknown assertion type",
			yaml:    "name: n\ndescription: d\nsystem: {admin: '@a'}\nflow: [{op: provision_self, from: '@a'}]\nassertions: [{type: vibes}]",
			wantErr: `unknown assertion type "vibes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
