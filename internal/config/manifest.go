package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/facet"
)

//go:embed schema.cue
var schemaCUE string

// Manifest describes a system to bootstrap: who administers it, which
// paymasters may provision on behalf of users, and which facets the diamond
// routes.
type Manifest struct {
	Admin           string       `yaml:"admin" toml:"admin" json:"admin"`
	Paymasters      []string     `yaml:"paymasters" toml:"paymasters" json:"paymasters,omitempty"`
	AccountLimit    uint64       `yaml:"account_limit" toml:"account_limit" json:"account_limit"`
	AccountInitCode string       `yaml:"account_init_code" toml:"account_init_code" json:"account_init_code"`
	CollectionLimit uint64       `yaml:"collection_limit" toml:"collection_limit" json:"collection_limit,omitempty"`
	Facets          []FacetEntry `yaml:"facets" toml:"facets" json:"facets,omitempty"`

	// BaseDir resolves relative ABI paths. LoadManifest sets it to the
	// manifest's directory.
	BaseDir string `yaml:"-" toml:"-" json:"-"`
}

// FacetEntry names a facet module and its selectors, given either as an
// ABI JSON file or as function signatures.
type FacetEntry struct {
	Name       string   `yaml:"name" toml:"name" json:"name"`
	ABI        string   `yaml:"abi" toml:"abi" json:"abi,omitempty"`
	Signatures []string `yaml:"signatures" toml:"signatures" json:"signatures,omitempty"`
}

// Setup is a validated manifest with every value decoded.
type Setup struct {
	Admin           chain.Address
	Paymasters      []chain.Address
	AccountLimit    uint64
	AccountInitCode []byte
	CollectionLimit uint64
	Facets          []FacetSetup
}

// FacetSetup is a facet module with its resolved selectors.
type FacetSetup struct {
	Name      string
	Selectors []chain.Selector
}

// ManifestError reports an invalid manifest field.
type ManifestError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ManifestError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadManifest reads a manifest, choosing the decoder by file extension:
// .yaml/.yml, .toml or .cue. Unknown fields are rejected in every format.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m *Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		m, err = ParseYAML(data)
	case ".toml":
		m, err = ParseTOML(data)
	case ".cue":
		m, err = ParseCUE(data, path)
	default:
		return nil, fmt.Errorf("manifest %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	m.BaseDir = filepath.Dir(path)
	return m, nil
}

// ParseYAML decodes a YAML manifest.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &m, nil
}

// ParseTOML decodes a TOML manifest.
func ParseTOML(data []byte) (*Manifest, error) {
	var m Manifest
	meta, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, &ManifestError{Field: undecoded[0].String(), Message: "unknown field"}
	}
	return &m, nil
}

// ParseCUE evaluates a CUE manifest against the embedded #Manifest schema.
// The file must be concrete once unified.
func ParseCUE(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var m Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, formatCUEError(err)
	}
	return &m, nil
}

// Resolve validates the manifest and decodes addresses, init code and facet
// selectors. ABI paths are relative to the manifest's directory.
func (m *Manifest) Resolve() (Setup, error) {
	var setup Setup
	var err error

	if setup.Admin, err = parseAddress("admin", m.Admin); err != nil {
		return Setup{}, err
	}
	if setup.Admin == chain.ZeroAddress {
		return Setup{}, &ManifestError{Field: "admin", Message: "must not be the zero address"}
	}

	seen := make(map[chain.Address]bool)
	for i, raw := range m.Paymasters {
		field := fmt.Sprintf("paymasters[%d]", i)
		pm, err := parseAddress(field, raw)
		if err != nil {
			return Setup{}, err
		}
		if pm == chain.ZeroAddress || seen[pm] {
			return Setup{}, &ManifestError{Field: field, Message: "zero or repeated paymaster"}
		}
		seen[pm] = true
		setup.Paymasters = append(setup.Paymasters, pm)
	}

	setup.AccountLimit = m.AccountLimit
	setup.CollectionLimit = m.CollectionLimit
	setup.AccountInitCode, err = hexutil.Decode(strings.TrimSpace(m.AccountInitCode))
	if err != nil || len(setup.AccountInitCode) == 0 {
		return Setup{}, &ManifestError{Field: "account_init_code", Message: "must be non-empty 0x-prefixed hex"}
	}

	names := make(map[string]bool)
	for i, f := range m.Facets {
		field := fmt.Sprintf("facets[%d]", i)
		if f.Name == "" || names[f.Name] {
			return Setup{}, &ManifestError{Field: field + ".name", Message: "missing or repeated facet name"}
		}
		names[f.Name] = true

		sels, err := m.facetSelectors(f)
		if err != nil {
			return Setup{}, &ManifestError{Field: field, Message: err.Error()}
		}
		if len(sels) == 0 {
			return Setup{}, &ManifestError{Field: field, Message: "facet declares no selectors"}
		}
		setup.Facets = append(setup.Facets, FacetSetup{Name: f.Name, Selectors: sels})
	}
	return setup, nil
}

func (m *Manifest) facetSelectors(f FacetEntry) ([]chain.Selector, error) {
	switch {
	case f.ABI != "" && len(f.Signatures) > 0:
		return nil, fmt.Errorf("set abi or signatures, not both")
	case f.ABI != "":
		path := f.ABI
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.BaseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return facet.SelectorsFromABI(data)
	default:
		return facet.SelectorsFromSignatures(f.Signatures)
	}
}

func parseAddress(field, s string) (chain.Address, error) {
	addr, err := chain.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return chain.Address{}, &ManifestError{Field: field, Message: err.Error()}
	}
	return addr, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &ManifestError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return first
}
