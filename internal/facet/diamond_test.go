package facet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/store"
	"github.com/beamio-APP/BeamioContract/internal/testutil"
)

var (
	owner    = testutil.Address("diamond-owner")
	stranger = testutil.Address("stranger")
	moduleA  = testutil.Address("module-a")
	moduleB  = testutil.Address("module-b")

	selTransfer = chain.SelectorOf("transfer(address,uint256)")
	selBalance  = chain.SelectorOf("balanceOf(address)")
	selApprove  = chain.SelectorOf("approve(address,uint256)")
)

func newTestDiamond(t *testing.T) (*ledger.Ledger, *Diamond) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	l, err := ledger.New(context.Background(), st,
		ledger.WithClock(testutil.NewDeterministicClock()),
		ledger.WithIDGenerator(testutil.NewSequentialIDs("")))
	require.NoError(t, err)

	var d *Diamond
	_, err = l.Submit(context.Background(), owner, "create diamond", func(tx *ledger.Tx) error {
		var err error
		d, err = Create(tx, owner)
		return err
	})
	require.NoError(t, err)
	return l, d
}

func cut(l *ledger.Ledger, d *Diamond, sender chain.Address, ops ...Op) error {
	_, err := l.Submit(context.Background(), sender, "cut", func(tx *ledger.Tx) error {
		return d.Cut(tx, ops)
	})
	return err
}

func routes(t *testing.T, l *ledger.Ledger, d *Diamond) []Route {
	t.Helper()
	var out []Route
	require.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		var err error
		out, err = d.AllRoutes(tx)
		return err
	}))
	return out
}

func TestCreate_RoutesCutSelectorToSelf(t *testing.T) {
	l, d := newTestDiamond(t)

	assert.Equal(t, []Route{{Selector: chain.CutSelector, Module: d.Address()}}, routes(t, l, d))
}

func TestCut_AddReplaceRemove(t *testing.T) {
	l, d := newTestDiamond(t)

	require.NoError(t, cut(l, d, owner, Op{Module: moduleA, Action: Add, Selectors: []chain.Selector{selTransfer, selBalance}}))
	require.NoError(t, cut(l, d, owner, Op{Module: moduleB, Action: Replace, Selectors: []chain.Selector{selBalance}}))
	require.NoError(t, cut(l, d, owner, Op{Action: Remove, Selectors: []chain.Selector{selTransfer}}))

	require.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		got, err := d.RouteOf(tx, selBalance)
		require.NoError(t, err)
		assert.Equal(t, moduleB, got)

		got, err = d.RouteOf(tx, selTransfer)
		require.NoError(t, err)
		assert.Equal(t, chain.ZeroAddress, got, "removed selectors are unassigned")

		sels, err := d.FacetSelectors(tx, moduleB)
		require.NoError(t, err)
		assert.Equal(t, []chain.Selector{selBalance}, sels)
		return nil
	}))
}

func TestCut_Rejections(t *testing.T) {
	tests := []struct {
		name string
		ops  []Op
	}{
		{"add routed selector", []Op{{Module: moduleB, Action: Add, Selectors: []chain.Selector{selTransfer}}}},
		{"replace unrouted selector", []Op{{Module: moduleB, Action: Replace, Selectors: []chain.Selector{selApprove}}}},
		{"remove unrouted selector", []Op{{Action: Remove, Selectors: []chain.Selector{selApprove}}}},
		{"add cut selector", []Op{{Module: moduleB, Action: Add, Selectors: []chain.Selector{chain.CutSelector}}}},
		{"replace cut selector", []Op{{Module: moduleB, Action: Replace, Selectors: []chain.Selector{chain.CutSelector}}}},
		{"remove cut selector", []Op{{Action: Remove, Selectors: []chain.Selector{chain.CutSelector}}}},
		{"add to zero module", []Op{{Action: Add, Selectors: []chain.Selector{selApprove}}}},
		{"replace to same module", []Op{{Module: moduleA, Action: Replace, Selectors: []chain.Selector{selTransfer}}}},
		{"remove naming a module", []Op{{Module: moduleA, Action: Remove, Selectors: []chain.Selector{selTransfer}}}},
		{"no selectors", []Op{{Module: moduleB, Action: Add}}},
		{"unknown action", []Op{{Module: moduleB, Action: Action(7), Selectors: []chain.Selector{selApprove}}}},
		{"duplicate within op", []Op{{Module: moduleB, Action: Add, Selectors: []chain.Selector{selApprove, selApprove}}}},
		{"empty batch", nil},
		{"valid op then invalid op", []Op{
			{Module: moduleB, Action: Add, Selectors: []chain.Selector{selApprove}},
			{Module: moduleB, Action: Replace, Selectors: []chain.Selector{chain.SelectorOf("never()")}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, d := newTestDiamond(t)
			require.NoError(t, cut(l, d, owner, Op{Module: moduleA, Action: Add, Selectors: []chain.Selector{selTransfer}}))
			before := routes(t, l, d)

			err := cut(l, d, owner, tt.ops...)
			assert.True(t, chain.IsRevert(err, chain.CodeCutRejected), "got %v", err)
			assert.Equal(t, before, routes(t, l, d), "routing table unchanged")
		})
	}
}

func TestCut_OpsComposeInOrder(t *testing.T) {
	l, d := newTestDiamond(t)

	err := cut(l, d, owner,
		Op{Module: moduleA, Action: Add, Selectors: []chain.Selector{selApprove}},
		Op{Module: moduleB, Action: Replace, Selectors: []chain.Selector{selApprove}},
		Op{Action: Remove, Selectors: []chain.Selector{selApprove}},
		Op{Module: moduleA, Action: Add, Selectors: []chain.Selector{selApprove}},
	)
	require.NoError(t, err)

	require.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		got, err := d.RouteOf(tx, selApprove)
		require.NoError(t, err)
		assert.Equal(t, moduleA, got)
		return nil
	}))
}

func TestCut_OwnerOnly(t *testing.T) {
	l, d := newTestDiamond(t)

	err := cut(l, d, stranger, Op{Module: moduleA, Action: Add, Selectors: []chain.Selector{selTransfer}})
	assert.True(t, chain.IsRevert(err, chain.CodeNotAuthorized))
}

func TestCut_EmitsOneEvent(t *testing.T) {
	l, d := newTestDiamond(t)

	rcpt, err := l.Submit(context.Background(), owner, "cut", func(tx *ledger.Tx) error {
		return d.Cut(tx, []Op{
			{Module: moduleA, Action: Add, Selectors: []chain.Selector{selTransfer}},
			{Module: moduleB, Action: Add, Selectors: []chain.Selector{selBalance}},
		})
	})
	require.NoError(t, err)
	require.Len(t, rcpt.Events, 1)
	assert.Equal(t, EventDiamondCut, rcpt.Events[0].Name)
	assert.Len(t, rcpt.Events[0].Args["ops"], 2)
}

func TestAllRoutesSortedAndFacetsGrouped(t *testing.T) {
	l, d := newTestDiamond(t)
	require.NoError(t, cut(l, d, owner,
		Op{Module: moduleB, Action: Add, Selectors: []chain.Selector{selTransfer, selApprove}},
		Op{Module: moduleA, Action: Add, Selectors: []chain.Selector{selBalance}},
	))

	all := routes(t, l, d)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Negative(t, chain.CompareSelectors(all[i-1].Selector, all[i].Selector))
	}

	require.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		facets, err := d.Facets(tx)
		require.NoError(t, err)
		require.Len(t, facets, 3, "diamond itself, module a, module b")
		for i := 1; i < len(facets); i++ {
			assert.Negative(t, chain.CompareAddresses(facets[i-1].Module, facets[i].Module))
		}
		for _, f := range facets {
			if f.Module == moduleB {
				assert.Len(t, f.Selectors, 2)
			}
		}
		return nil
	}))
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"add": Add, "Replace": Replace, "REMOVE": Remove} {
		got, err := ParseAction(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAction("upsert")
	assert.Error(t, err)
	assert.Equal(t, "action(9)", Action(9).String())
}
