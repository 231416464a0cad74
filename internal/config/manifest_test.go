package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

func TestLoadManifest_FormatsAgree(t *testing.T) {
	var setups []Setup
	for _, name := range []string{"system.yaml", "system.toml", "system.cue"} {
		t.Run(name, func(t *testing.T) {
			m, err := LoadManifest(filepath.Join("testdata", name))
			require.NoError(t, err)
			setup, err := m.Resolve()
			require.NoError(t, err)
			setups = append(setups, setup)
		})
	}
	require.Len(t, setups, 3)
	assert.Equal(t, setups[0], setups[1])
	assert.Equal(t, setups[0], setups[2])

	setup := setups[0]
	assert.Equal(t, chain.MustParseAddress("0x00000000000000000000000000000000000000ad"), setup.Admin)
	assert.Len(t, setup.Paymasters, 1)
	assert.Equal(t, uint64(100), setup.AccountLimit)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, setup.AccountInitCode)
	assert.Equal(t, uint64(5), setup.CollectionLimit)

	require.Len(t, setup.Facets, 2)
	assert.Equal(t, "token", setup.Facets[0].Name)
	assert.ElementsMatch(t, []chain.Selector{
		chain.SelectorOf("transfer(address,uint256)"),
		chain.SelectorOf("balanceOf(address)"),
	}, setup.Facets[0].Selectors)
	assert.ElementsMatch(t, []chain.Selector{
		chain.SelectorOf("mintCard(address,uint256)"),
		chain.SelectorOf("cardsOf(address)"),
	}, setup.Facets[1].Selectors)
}

func TestLoadManifest_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"extra.yaml": "admin: \"0x00000000000000000000000000000000000000ad\"\nowner: x\n",
		"extra.toml": "admin = \"0x00000000000000000000000000000000000000ad\"\nowner = \"x\"\n",
		"extra.cue": `admin: "0x00000000000000000000000000000000000000ad"
account_limit: 1
account_init_code: "0x60"
owner: "x"
`,
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadManifest(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadManifest_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := LoadManifest(path)
	assert.ErrorContains(t, err, "unsupported extension")
}

func TestParseCUE_SchemaViolation(t *testing.T) {
	_, err := ParseCUE([]byte(`admin: "not-an-address"
account_limit: 1
account_init_code: "0x60"
`), "bad.cue")
	require.Error(t, err)

	var merr *ManifestError
	if assert.ErrorAs(t, err, &merr) {
		assert.Equal(t, "cue", merr.Field)
	}
}

func TestResolve_Validation(t *testing.T) {
	valid := func() Manifest {
		return Manifest{
			Admin:           "0x00000000000000000000000000000000000000ad",
			AccountLimit:    1,
			AccountInitCode: "0x60",
		}
	}

	tests := []struct {
		name  string
		edit  func(*Manifest)
		field string
	}{
		{"zero admin", func(m *Manifest) { m.Admin = "0x0000000000000000000000000000000000000000" }, "admin"},
		{"bad admin", func(m *Manifest) { m.Admin = "0x12" }, "admin"},
		{"repeated paymaster", func(m *Manifest) {
			m.Paymasters = []string{m.Admin, m.Admin}
		}, "paymasters[1]"},
		{"empty init code", func(m *Manifest) { m.AccountInitCode = "0x" }, "account_init_code"},
		{"init code without prefix", func(m *Manifest) { m.AccountInitCode = "6080" }, "account_init_code"},
		{"facet without selectors", func(m *Manifest) {
			m.Facets = []FacetEntry{{Name: "empty"}}
		}, "facets[0]"},
		{"facet with both sources", func(m *Manifest) {
			m.Facets = []FacetEntry{{Name: "x", ABI: "x.json", Signatures: []string{"f()"}}}
		}, "facets[0]"},
		{"repeated facet name", func(m *Manifest) {
			m.Facets = []FacetEntry{
				{Name: "x", Signatures: []string{"f()"}},
				{Name: "x", Signatures: []string{"g()"}},
			}
		}, "facets[1].name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.edit(&m)
			_, err := m.Resolve()

			var merr *ManifestError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, tt.field, merr.Field)
		})
	}

	m := valid()
	_, err := m.Resolve()
	assert.NoError(t, err)
}
