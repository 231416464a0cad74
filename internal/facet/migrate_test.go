package facet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/store"
)

const erc20ABI = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]},
	{"type":"function","name":"balanceOf","inputs":[{"name":"who","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256"}]}
]`

func deployModule(t *testing.T, l *ledger.Ledger, code string) chain.Address {
	t.Helper()
	var addr chain.Address
	_, err := l.Submit(context.Background(), owner, "module", func(tx *ledger.Tx) error {
		var err error
		addr, err = tx.Create([]byte(code))
		return err
	})
	require.NoError(t, err)
	return addr
}

func migrate(l *ledger.Ledger, d *Diamond, module chain.Address, sels []chain.Selector) (Plan, *ledger.Receipt, error) {
	var plan Plan
	rcpt, err := l.Submit(context.Background(), owner, "migrate", func(tx *ledger.Tx) error {
		var err error
		plan, err = Migrate(tx, d, module, sels)
		return err
	})
	return plan, rcpt, err
}

func TestSelectorsFromABI(t *testing.T) {
	sels, err := SelectorsFromABI([]byte(erc20ABI))
	require.NoError(t, err)

	assert.ElementsMatch(t, []chain.Selector{selTransfer, selBalance, selApprove}, sels)
	for i := 1; i < len(sels); i++ {
		assert.Negative(t, chain.CompareSelectors(sels[i-1], sels[i]))
	}

	_, err = SelectorsFromABI([]byte("not json"))
	assert.Error(t, err)
}

func TestSelectorsFromSignatures(t *testing.T) {
	sels, err := SelectorsFromSignatures([]string{
		"transfer(address,uint256)",
		"balanceOf(address)",
		"transfer(address to, uint256 amount)",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []chain.Selector{selTransfer, selBalance}, sels, "duplicates collapse")

	_, err = SelectorsFromSignatures([]string{"transfer(address"})
	assert.Error(t, err)
}

func TestMigrate_ClassifiesAndCutsOnce(t *testing.T) {
	l, d := newTestDiamond(t)
	oldModule := deployModule(t, l, "token-v1")
	newModule := deployModule(t, l, "token-v2")

	require.NoError(t, cut(l, d, owner, Op{Module: oldModule, Action: Add, Selectors: []chain.Selector{selTransfer, selBalance}}))

	sels, err := SelectorsFromABI([]byte(erc20ABI))
	require.NoError(t, err)
	sels = append(sels, chain.CutSelector)

	plan, rcpt, err := migrate(l, d, newModule, sels)
	require.NoError(t, err)
	assert.Equal(t, []chain.Selector{selApprove}, plan.Add)
	assert.ElementsMatch(t, []chain.Selector{selTransfer, selBalance}, plan.Replace)
	assert.Empty(t, plan.Unchanged)
	require.Len(t, rcpt.Events, 1, "exactly one cut")
	assert.Equal(t, EventDiamondCut, rcpt.Events[0].Name)

	require.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		for _, sel := range []chain.Selector{selTransfer, selBalance, selApprove} {
			got, err := d.RouteOf(tx, sel)
			require.NoError(t, err)
			assert.Equal(t, newModule, got, sel.String())
		}
		got, err := d.RouteOf(tx, chain.CutSelector)
		require.NoError(t, err)
		assert.Equal(t, d.Address(), got, "cut selector untouched")
		return nil
	}))
}

func TestMigrate_NothingToDo(t *testing.T) {
	l, d := newTestDiamond(t)
	module := deployModule(t, l, "token-v1")
	sels := []chain.Selector{selTransfer}

	_, _, err := migrate(l, d, module, sels)
	require.NoError(t, err)

	plan, rcpt, err := migrate(l, d, module, sels)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, sels, plan.Unchanged)
	assert.Nil(t, plan.Ops())
	assert.Empty(t, rcpt.Events, "no cut submitted")

	cuts, err := l.Events(context.Background(), store.EventFilter{Name: EventDiamondCut})
	require.NoError(t, err)
	assert.Len(t, cuts, 1)
}

func TestMigrate_ModuleWithoutCode(t *testing.T) {
	l, d := newTestDiamond(t)

	_, _, err := migrate(l, d, moduleA, []chain.Selector{selTransfer})
	assert.True(t, chain.IsRevert(err, chain.CodeNotFound), "got %v", err)

	_, _, err = migrate(l, d, chain.ZeroAddress, []chain.Selector{selTransfer})
	assert.True(t, chain.IsRevert(err, chain.CodeInvalidInput))
}

func TestMigrate_FailedCutLeavesOldRouting(t *testing.T) {
	l, d := newTestDiamond(t)
	oldModule := deployModule(t, l, "token-v1")
	newModule := deployModule(t, l, "token-v2")
	require.NoError(t, cut(l, d, owner, Op{Module: oldModule, Action: Add, Selectors: []chain.Selector{selTransfer}}))
	before := routes(t, l, d)

	// A non-owner's migration plans fine but its single cut is refused.
	_, err := l.Submit(context.Background(), stranger, "migrate", func(tx *ledger.Tx) error {
		_, err := Migrate(tx, d, newModule, []chain.Selector{selTransfer, selApprove})
		return err
	})
	assert.True(t, chain.IsRevert(err, chain.CodeNotAuthorized))
	assert.Equal(t, before, routes(t, l, d))
}

func TestPlan_Ops(t *testing.T) {
	p := Plan{Module: moduleA, Add: []chain.Selector{selApprove}, Replace: []chain.Selector{selTransfer}}
	assert.Equal(t, []Op{
		{Module: moduleA, Action: Add, Selectors: []chain.Selector{selApprove}},
		{Module: moduleA, Action: Replace, Selectors: []chain.Selector{selTransfer}},
	}, p.Ops())
	assert.False(t, p.Empty())
}
