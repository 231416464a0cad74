package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/beamio-APP/BeamioContract/internal/config"
)

// Scenario is a provisioning test: a system to bootstrap, steps to run and
// assertions over the outcome.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// System is the bootstrap manifest. Addresses may be aliases.
	System SystemManifest `yaml:"system"`

	// Setup steps run before the flow. They must commit unless they carry
	// an expect clause.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are the behaviour under test.
	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir resolves relative ABI paths in System.Facets.
	dir string
}

// SystemManifest mirrors config.Manifest with symbolic addresses.
type SystemManifest struct {
	Admin           string              `yaml:"admin"`
	Paymasters      []string            `yaml:"paymasters,omitempty"`
	AccountLimit    uint64              `yaml:"account_limit"`
	AccountInitCode string              `yaml:"account_init_code"`
	CollectionLimit uint64              `yaml:"collection_limit,omitempty"`
	Facets          []config.FacetEntry `yaml:"facets,omitempty"`
}

// Step is one transaction or query sent from an identity.
type Step struct {
	Op     string         `yaml:"op"`
	From   string         `yaml:"from"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect *Expect        `yaml:"expect,omitempty"`
}

// Expect constrains a step's outcome.
type Expect struct {
	// Status is "committed" (the default), "reverted" or "skipped".
	Status string `yaml:"status,omitempty"`
	// Code is the expected revert code when Status is "reverted".
	Code string `yaml:"code,omitempty"`
	// Result is a subset match over the step's result values.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion checks the whole trace or final state.
type Assertion struct {
	// Type is one of event_count, event_order or state.
	Type string `yaml:"type"`

	// Event and Count are used by event_count.
	Event string `yaml:"event,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Events is used by event_order.
	Events []string `yaml:"events,omitempty"`

	// Query, Args and Expect are used by state.
	Query  string         `yaml:"query,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect any            `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertEventCount = "event_count"
	AssertEventOrder = "event_order"
	AssertState      = "state"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so that
// typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.System.Admin == "" {
		return fmt.Errorf("system.admin is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	if _, ok := operations[step.Op]; !ok {
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}
	if step.From == "" {
		return fmt.Errorf("%s: from is required", where)
	}
	if e := step.Expect; e != nil {
		switch e.Status {
		case "", StatusCommitted, StatusSkipped:
			if e.Code != "" {
				return fmt.Errorf("%s.expect: code requires status %q", where, StatusReverted)
			}
		case StatusReverted:
		default:
			return fmt.Errorf("%s.expect: unknown status %q", where, e.Status)
		}
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", i)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", i)
		}
	case AssertState:
		if _, ok := queries[a.Query]; !ok {
			return fmt.Errorf("assertions[%d]: unknown query %q", i, a.Query)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for state", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
