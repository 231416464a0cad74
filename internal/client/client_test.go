package client

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/config"
	"github.com/beamio-APP/BeamioContract/internal/deployer"
	"github.com/beamio-APP/BeamioContract/internal/facet"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/oracle"
	"github.com/beamio-APP/BeamioContract/internal/registry"
	"github.com/beamio-APP/BeamioContract/internal/store"
	"github.com/beamio-APP/BeamioContract/internal/testutil"
)

var (
	admin     = testutil.Address("admin")
	paymaster = testutil.Address("paymaster")
	user      = testutil.Address("user")
	stranger  = testutil.Address("stranger")

	accountCode = []byte("beamio-account-v1")
	cardCode    = []byte("beamio-card-v1")

	selTransfer = chain.SelectorOf("transfer(address,uint256)")
	selBalance  = chain.SelectorOf("balanceOf(address)")
	selApprove  = chain.SelectorOf("approve(address,uint256)")
)

func testSetup() config.Setup {
	return config.Setup{
		Admin:           admin,
		Paymasters:      []chain.Address{paymaster},
		AccountLimit:    100,
		AccountInitCode: accountCode,
		CollectionLimit: 3,
		Facets: []config.FacetSetup{
			{Name: "token", Selectors: []chain.Selector{selTransfer, selBalance}},
		},
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil,
		ledger.WithClock(testutil.NewDeterministicClock()),
		ledger.WithIDGenerator(testutil.NewSequentialIDs("")))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func bootstrapped(t *testing.T) (*Client, System) {
	t.Helper()
	c := newTestClient(t)
	sys, _, err := c.Bootstrap(context.Background(), testSetup())
	require.NoError(t, err)
	return c, sys
}

func TestBootstrap_CreatesAndNamesSystem(t *testing.T) {
	c, sys := bootstrapped(t)
	ctx := context.Background()

	loaded, err := c.System(ctx)
	require.NoError(t, err)
	assert.Equal(t, sys, loaded)
	assert.NotEqual(t, chain.ZeroAddress, sys.Collections)
	require.Contains(t, sys.Facets, "token")

	b, err := c.Binding(ctx, sys.AccountDeployer)
	require.NoError(t, err)
	reg, ok := b.Registry()
	assert.True(t, ok)
	assert.Equal(t, sys.Registry, reg)

	ok, err = c.IsAuthorizedCaller(ctx, paymaster)
	require.NoError(t, err)
	assert.True(t, ok)

	route, err := c.RouteOf(ctx, selTransfer)
	require.NoError(t, err)
	assert.Equal(t, sys.Facets["token"], route)
}

func TestBootstrap_Twice(t *testing.T) {
	c, _ := bootstrapped(t)

	_, rcpt, err := c.Bootstrap(context.Background(), testSetup())
	require.Error(t, err)
	require.NotNil(t, rcpt)
	assert.True(t, rcpt.Reverted())
}

func TestBootstrap_WithoutCollections(t *testing.T) {
	c := newTestClient(t)
	setup := testSetup()
	setup.CollectionLimit = 0
	setup.Facets = nil

	sys, _, err := c.Bootstrap(context.Background(), setup)
	require.NoError(t, err)
	assert.Equal(t, chain.ZeroAddress, sys.Collections)

	_, _, err = c.CreateCollection(context.Background(), paymaster, user, cardCode)
	assert.True(t, chain.IsRevert(err, chain.CodeNotFound))

	// Role changes still reach the account registry.
	_, err = c.SetAuthorizedCaller(context.Background(), admin, stranger, true)
	assert.NoError(t, err)
}

func TestNotBootstrapped(t *testing.T) {
	c := newTestClient(t)

	_, _, err := c.ProvisionFor(context.Background(), paymaster, user)
	assert.True(t, chain.IsRevert(err, chain.CodeNotFound))

	_, err = c.System(context.Background())
	assert.True(t, chain.IsRevert(err, chain.CodeNotFound))
}

// A paymaster provisions a fresh creator, then retries.
func TestProvisionFor_FreshCreatorThenRetry(t *testing.T) {
	c, sys := bootstrapped(t)
	ctx := context.Background()

	predicted, err := c.PredictAddress(ctx, user, 0)
	require.NoError(t, err)
	assert.Equal(t, oracle.PredictInitCode(sys.AccountDeployer, chain.SaltFor(user, 0), accountCode), predicted)

	out, rcpt, err := c.ProvisionFor(ctx, paymaster, user)
	require.NoError(t, err)
	assert.Equal(t, predicted, out.Address)
	assert.True(t, out.Deployed)
	assert.NotEmpty(t, rcpt.Events)

	again, rcpt, err := c.ProvisionFor(ctx, paymaster, user)
	require.NoError(t, err)
	assert.Equal(t, predicted, again.Address)
	assert.False(t, again.Deployed)
	assert.Empty(t, rcpt.Events, "retry is a no-op")

	next, err := c.NextIndexOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

// Someone deploys the account without registering it; provisioning then
// registers the existing code.
func TestProvisionFor_RegistersOutOfBandDeployment(t *testing.T) {
	c, sys := bootstrapped(t)
	ctx := context.Background()

	addr, _, err := c.Deploy(ctx, sys.Registry, sys.AccountDeployer, chain.SaltFor(user, 0), accountCode)
	require.NoError(t, err)

	st, err := c.Status(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, registry.StateDeployedUnregistered.String(), st.State)
	assert.Equal(t, addr, st.Predicted)

	out, _, err := c.ProvisionFor(ctx, paymaster, user)
	require.NoError(t, err)
	assert.Equal(t, addr, out.Address)
	assert.False(t, out.Deployed)
	assert.Equal(t, registry.StateDeployedUnregistered, out.Prior)

	st, err = c.Status(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, registry.StateRegistered.String(), st.State)
	assert.Equal(t, addr, st.Primary)
	assert.Equal(t, []chain.Address{addr}, st.Accounts)

	ok, err := c.IsProvisioned(ctx, addr)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStatus_Absent(t *testing.T) {
	c, _ := bootstrapped(t)

	st, err := c.Status(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, registry.StateAbsent.String(), st.State)
	assert.Equal(t, chain.ZeroAddress, st.Primary)
	assert.Equal(t, uint64(100), st.Limit)
	assert.Empty(t, st.Accounts)
}

func TestDeploy_OnlyBoundRegistry(t *testing.T) {
	c, sys := bootstrapped(t)

	_, rcpt, err := c.Deploy(context.Background(), stranger, sys.AccountDeployer, chain.SaltFor(user, 0), accountCode)
	assert.True(t, chain.IsRevert(err, chain.CodeNotAuthorized))
	assert.True(t, rcpt.Reverted())
}

func TestBind_LatchHolds(t *testing.T) {
	c, sys := bootstrapped(t)
	ctx := context.Background()

	_, err := c.Bind(ctx, admin, sys.AccountDeployer, sys.Registry)
	assert.NoError(t, err, "same registry again is a no-op")

	_, err = c.Bind(ctx, admin, sys.AccountDeployer, stranger)
	assert.True(t, chain.IsRevert(err, chain.CodeAlreadyBound))

	predicted, err := c.Predict(ctx, sys.AccountDeployer, chain.SaltFor(user, 0), accountCode)
	require.NoError(t, err)
	direct, err := c.PredictAddress(ctx, user, 0)
	require.NoError(t, err)
	assert.Equal(t, direct, predicted)
}

func TestProvisionFor_ConcurrentPaymasters(t *testing.T) {
	c, _ := bootstrapped(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]chain.Address, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, _, err := c.ProvisionFor(ctx, paymaster, user)
			results[i], errs[i] = out.Address, err
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	created, err := c.Events(ctx, store.EventFilter{Name: deployer.EventDeployed})
	require.NoError(t, err)
	assert.Len(t, created, 1, "deployed exactly once")
}

func TestCancelledContextExecutesNothing(t *testing.T) {
	c, _ := bootstrapped(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before, err := c.Transactions(context.Background())
	require.NoError(t, err)

	_, rcpt, err := c.ProvisionFor(ctx, paymaster, user)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rcpt)

	after, err := c.Transactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestAuthorizationAndLimits(t *testing.T) {
	c, _ := bootstrapped(t)
	ctx := context.Background()

	_, _, err := c.ProvisionFor(ctx, stranger, user)
	assert.True(t, chain.IsRevert(err, chain.CodeNotAuthorized))

	_, err = c.SetAuthorizedCaller(ctx, admin, stranger, true)
	require.NoError(t, err)
	_, _, err = c.ProvisionFor(ctx, stranger, user)
	require.NoError(t, err)

	_, err = c.SetAccountLimit(ctx, stranger, 5)
	assert.True(t, chain.IsRevert(err, chain.CodeNotAuthorized))
	_, err = c.SetAccountLimit(ctx, admin, 1)
	require.NoError(t, err)

	_, _, err = c.ProvisionNext(ctx, paymaster, user)
	assert.True(t, chain.IsRevert(err, chain.CodeLimitExceeded))

	self, _, err := c.ProvisionSelf(ctx, stranger)
	require.NoError(t, err)
	primary, err := c.PrimaryOf(ctx, stranger)
	require.NoError(t, err)
	assert.Equal(t, self.Address, primary)

	accounts, err := c.AccountsOf(ctx, user)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestTransferAdmin(t *testing.T) {
	c, _ := bootstrapped(t)
	ctx := context.Background()

	_, err := c.TransferAdmin(ctx, admin, stranger)
	require.NoError(t, err)

	_, err = c.SetAccountLimit(ctx, admin, 5)
	assert.True(t, chain.IsRevert(err, chain.CodeNotAuthorized))
	_, err = c.SetAccountLimit(ctx, stranger, 5)
	assert.NoError(t, err)
}

func TestMigrate(t *testing.T) {
	c, sys := bootstrapped(t)
	ctx := context.Background()

	v2, _, err := c.InstallModule(ctx, admin, []byte("beamio/facet/token/v2"))
	require.NoError(t, err)

	sels := []chain.Selector{selTransfer, selBalance, selApprove, chain.CutSelector}
	plan, err := c.PlanMigration(ctx, v2, sels)
	require.NoError(t, err)
	assert.Equal(t, []chain.Selector{selApprove}, plan.Add)
	assert.Len(t, plan.Replace, 2)

	_, _, err = c.Migrate(ctx, stranger, v2, sels)
	assert.True(t, chain.IsRevert(err, chain.CodeNotAuthorized))
	route, err := c.RouteOf(ctx, selTransfer)
	require.NoError(t, err)
	assert.Equal(t, sys.Facets["token"], route, "failed migration leaves routing intact")

	_, rcpt, err := c.Migrate(ctx, admin, v2, sels)
	require.NoError(t, err)
	require.NotNil(t, rcpt)
	require.Len(t, rcpt.Events, 1)
	assert.Equal(t, facet.EventDiamondCut, rcpt.Events[0].Name)

	plan, rcpt, err = c.Migrate(ctx, admin, v2, sels)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Nil(t, rcpt, "nothing to migrate submits nothing")

	facets, err := c.Facets(ctx)
	require.NoError(t, err)
	assert.Len(t, facets, 2, "diamond and v2")

	_, _, err = c.InstallModule(ctx, admin, nil)
	assert.True(t, chain.IsRevert(err, chain.CodeInvalidInput))
}

func TestCut(t *testing.T) {
	c, sys := bootstrapped(t)
	ctx := context.Background()

	_, err := c.Cut(ctx, admin, []facet.Op{{Action: facet.Remove, Selectors: []chain.Selector{selBalance}}})
	require.NoError(t, err)

	routes, err := c.AllRoutes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []facet.Route{
		{Selector: chain.CutSelector, Module: sys.Diamond},
		{Selector: selTransfer, Module: sys.Facets["token"]},
	}, routes)
}

func TestCollections(t *testing.T) {
	c, _ := bootstrapped(t)
	ctx := context.Background()

	predicted, err := c.PredictCollection(ctx, user, 0, cardCode)
	require.NoError(t, err)

	out, _, err := c.CreateCollection(ctx, paymaster, user, cardCode)
	require.NoError(t, err)
	assert.Equal(t, predicted, out.Address)

	next, err := c.NextCollectionIndexOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	owned, err := c.CollectionsOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []chain.Address{predicted}, owned)
}

func TestFailedTransaction(t *testing.T) {
	c, _ := bootstrapped(t)
	ctx := context.Background()

	_, rcpt, err := c.ProvisionFor(ctx, stranger, user)
	require.Error(t, err)

	rec, err := c.FailedTransaction(ctx, rcpt.TxID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusReverted, rec.Status)
	assert.Contains(t, rec.Error, string(chain.CodeNotAuthorized))

	_, err = c.FailedTransaction(ctx, "tx-9999")
	assert.ErrorContains(t, err, "not found")
}
