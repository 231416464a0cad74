package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	Scenario string      `json:"scenario"`
	Trace    []TraceStep `json:"trace"`
}

// toCanonicalMap converts the snapshot into the value types understood by
// chain.MarshalCanonical.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, step := range s.Trace {
		events := make([]any, len(step.Events))
		for j, ev := range step.Events {
			events[j] = map[string]any{
				"contract": ev.Contract,
				"name":     ev.Name,
				"args":     ev.Args,
			}
		}
		m := map[string]any{
			"seq":    step.Seq,
			"op":     step.Op,
			"from":   step.From,
			"args":   step.Args,
			"status": step.Status,
			"events": events,
		}
		if step.Code != "" {
			m["code"] = step.Code
		}
		if step.Result != nil {
			m["result"] = step.Result
		}
		trace[i] = m
	}
	return map[string]any{
		"scenario": s.Scenario,
		"trace":    trace,
	}
}

// MarshalTrace renders a run as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{Scenario: name, Trace: result.Trace}
	return chain.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalTrace(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
