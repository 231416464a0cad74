package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/client"
	"github.com/beamio-APP/BeamioContract/internal/config"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/store"
	"github.com/beamio-APP/BeamioContract/internal/testutil"
)

// Harness runs one scenario against a fresh in-memory ledger.
type Harness struct {
	client *client.Client
	system client.System
	setup  config.Setup
	syms   *symbols
	logger *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger routes ledger and client logs to logger. Runs are silent by
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// Run executes a scenario and returns its result.
//
// Every run bootstraps a fresh in-memory ledger with a deterministic clock
// and transaction IDs, so the same scenario always yields the same trace.
// The bootstrap transaction takes seq 1 and is not traced. A returned error
// means the scenario could not be executed at all; expectation and
// assertion failures land in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		syms:   newSymbols(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	l, err := ledger.New(ctx, st,
		ledger.WithClock(testutil.NewDeterministicClock()),
		ledger.WithIDGenerator(testutil.NewSequentialIDs("tx")),
		ledger.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	h.client = client.New(l, h.logger)

	if err := h.bootstrap(ctx, scenario); err != nil {
		return nil, err
	}

	result := NewResult()
	result.System = h.system
	for i, step := range scenario.Setup {
		if err := h.runStep(ctx, fmt.Sprintf("setup[%d]", i), step, result); err != nil {
			return nil, err
		}
	}
	for i, step := range scenario.Flow {
		if err := h.runStep(ctx, fmt.Sprintf("flow[%d]", i), step, result); err != nil {
			return nil, err
		}
	}

	for _, msg := range h.evaluate(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// bootstrap resolves the scenario's symbolic system, creates it and names
// every system contract.
func (h *Harness) bootstrap(ctx context.Context, scenario *Scenario) error {
	sys := scenario.System
	m := config.Manifest{
		AccountLimit:    sys.AccountLimit,
		AccountInitCode: sys.AccountInitCode,
		CollectionLimit: sys.CollectionLimit,
		Facets:          sys.Facets,
		BaseDir:         scenario.dir,
	}
	admin, err := h.syms.resolve(sys.Admin)
	if err != nil {
		return fmt.Errorf("system.admin: %w", err)
	}
	m.Admin = admin.Hex()
	for i, p := range sys.Paymasters {
		addr, err := h.syms.resolve(p)
		if err != nil {
			return fmt.Errorf("system.paymasters[%d]: %w", i, err)
		}
		m.Paymasters = append(m.Paymasters, addr.Hex())
	}

	setup, err := m.Resolve()
	if err != nil {
		return fmt.Errorf("system: %w", err)
	}
	h.setup = setup

	h.system, _, err = h.client.Bootstrap(ctx, setup)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	h.syms.name("$"+client.NameAccountDeployer, h.system.AccountDeployer)
	h.syms.name("$"+client.NameRegistry, h.system.Registry)
	h.syms.name("$"+client.NameDiamond, h.system.Diamond)
	if h.system.Collections != chain.ZeroAddress {
		h.syms.name("$"+client.NameCollectionDeployer, h.system.CollectionDeployer)
		h.syms.name("$"+client.NameCollections, h.system.Collections)
	}
	names := make([]string, 0, len(h.system.Facets))
	for name := range h.system.Facets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.syms.name("$"+client.FacetPrefix+name, h.system.Facets[name])
	}
	return nil
}

// runStep executes one step, appends it to the trace and checks its
// expectation.
func (h *Harness) runStep(ctx context.Context, where string, step Step, result *Result) error {
	from, err := h.syms.resolve(step.From)
	if err != nil {
		return fmt.Errorf("%s: from: %w", where, err)
	}
	args := step.Args
	if args == nil {
		args = map[string]any{}
	}

	values, rcpt, err := operations[step.Op](ctx, h, from, stepArgs(args))
	if err != nil && rcpt == nil {
		return fmt.Errorf("%s: %s: %w", where, step.Op, err)
	}

	ts := TraceStep{
		Op:     step.Op,
		From:   fmt.Sprint(h.syms.render(from)),
		Args:   h.syms.renderMap(args),
		Status: StatusSkipped,
		Events: []TraceEvent{},
	}
	if values != nil {
		ts.Result = h.syms.renderMap(values)
	}
	if rcpt != nil {
		ts.Seq = rcpt.Seq
		ts.Status = rcpt.Status
		if rcpt.Reverted() {
			ts.Code = string(chain.CodeOf(rcpt.Err))
		}
		for _, ev := range rcpt.Events {
			ts.Events = append(ts.Events, TraceEvent{
				Contract: fmt.Sprint(h.syms.render(ev.Contract)),
				Name:     ev.Name,
				Args:     h.syms.renderMap(ev.Args),
			})
		}
	}
	result.Trace = append(result.Trace, ts)

	for _, msg := range checkExpect(step.Expect, ts) {
		result.AddError(fmt.Sprintf("%s (%s): %s", where, step.Op, msg))
	}
	return nil
}

func checkExpect(e *Expect, ts TraceStep) []string {
	want := Expect{Status: StatusCommitted}
	if e != nil {
		want = *e
		if want.Status == "" {
			want.Status = StatusCommitted
		}
	}

	var errs []string
	if ts.Status != want.Status {
		msg := fmt.Sprintf("expected status %s, got %s", want.Status, ts.Status)
		if ts.Code != "" {
			msg += " (" + ts.Code + ")"
		}
		errs = append(errs, msg)
	}
	if want.Code != "" && ts.Code != want.Code {
		errs = append(errs, fmt.Sprintf("expected revert code %s, got %q", want.Code, ts.Code))
	}

	keys := make([]string, 0, len(want.Result))
	for k := range want.Result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		got, ok := ts.Result[k]
		if !ok {
			errs = append(errs, fmt.Sprintf("result.%s: missing", k))
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(want.Result[k]) {
			errs = append(errs, fmt.Sprintf("result.%s: expected %v, got %v", k, want.Result[k], got))
		}
	}
	return errs
}
