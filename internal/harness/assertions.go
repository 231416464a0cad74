package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// AssertionError is returned when an assertion fails. It carries the
// executed steps so a failure can be read without rerunning the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceStep
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, step := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s from %s: %s", step.Seq, step.Op, step.From, step.Status)
		if step.Code != "" {
			fmt.Fprintf(&buf, " (%s)", step.Code)
		}
		names := make([]string, len(step.Events))
		for i, ev := range step.Events {
			names[i] = ev.Name
		}
		if len(names) > 0 {
			fmt.Fprintf(&buf, " [%s]", strings.Join(names, ", "))
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// queryFunc reads one value of final state. Addresses and hashes in the
// returned value are rendered before comparison.
type queryFunc func(ctx context.Context, h *Harness, args stepArgs) (any, error)

var queries = map[string]queryFunc{
	"primary_of": func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		creator, err := args.address(h.syms, "creator")
		if err != nil {
			return nil, err
		}
		return h.client.PrimaryOf(ctx, creator)
	},
	"next_index": func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		creator, err := args.address(h.syms, "creator")
		if err != nil {
			return nil, err
		}
		return h.client.NextIndexOf(ctx, creator)
	},
	"predict": func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		creator, err := args.address(h.syms, "creator")
		if err != nil {
			return nil, err
		}
		index, err := args.num("index")
		if err != nil {
			return nil, err
		}
		return h.client.PredictAddress(ctx, creator, index)
	},
	"is_provisioned": func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		addr, err := args.address(h.syms, "address")
		if err != nil {
			return nil, err
		}
		return h.client.IsProvisioned(ctx, addr)
	},
	"accounts_of": func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		creator, err := args.address(h.syms, "creator")
		if err != nil {
			return nil, err
		}
		accounts, err := h.client.AccountsOf(ctx, creator)
		return addressList(accounts), err
	},
	"collections_of": func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		owner, err := args.address(h.syms, "owner")
		if err != nil {
			return nil, err
		}
		collections, err := h.client.CollectionsOf(ctx, owner)
		return addressList(collections), err
	},
	"authorized": func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		caller, err := args.address(h.syms, "caller")
		if err != nil {
			return nil, err
		}
		return h.client.IsAuthorizedCaller(ctx, caller)
	},
	"route_of": func(ctx context.Context, h *Harness, args stepArgs) (any, error) {
		sig, err := args.str("signature")
		if err != nil {
			return nil, err
		}
		sel, perr := chain.ParseSelector(sig)
		if perr != nil {
			sel = chain.SelectorOf(sig)
		}
		return h.client.RouteOf(ctx, sel)
	},
}

func addressList(addrs []chain.Address) []any {
	out := make([]any, len(addrs))
	for i, a := range addrs {
		out[i] = a
	}
	return out
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, a)
		case AssertState:
			err = h.assertState(ctx, result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// eventNames flattens the trace into the committed event stream.
func eventNames(trace []TraceStep) []string {
	var names []string
	for _, step := range trace {
		for _, ev := range step.Events {
			names = append(names, ev.Name)
		}
	}
	return names
}

// assertEventCount checks that the event was emitted exactly Count times
// across the traced steps.
func assertEventCount(trace []TraceStep, a Assertion) error {
	count := 0
	for _, name := range eventNames(trace) {
		if name == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%s emitted %d times", a.Event, a.Count),
			Actual:   fmt.Sprintf("emitted %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEventOrder checks that the events appear as a subsequence of the
// event stream. Other events may come in between.
func assertEventOrder(trace []TraceStep, a Assertion) error {
	stream := eventNames(trace)
	next := 0
	for _, name := range stream {
		if next < len(a.Events) && name == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("%s not found after %v in %v", a.Events[next], a.Events[:next], stream),
		Trace:    trace,
	}
}

// assertState runs a query against final state and compares its rendered
// value with the expectation.
func (h *Harness) assertState(ctx context.Context, trace []TraceStep, a Assertion) error {
	args := a.Args
	if args == nil {
		args = map[string]any{}
	}
	got, err := queries[a.Query](ctx, h, stepArgs(args))
	if err != nil {
		return fmt.Errorf("query %s: %w", a.Query, err)
	}
	rendered := h.syms.render(got)
	if fmt.Sprint(rendered) != fmt.Sprint(a.Expect) {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s%v = %v", a.Query, h.syms.renderMap(args), a.Expect),
			Actual:   fmt.Sprint(rendered),
			Trace:    trace,
		}
	}
	return nil
}
