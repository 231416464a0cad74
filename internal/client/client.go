// Package client is the typed surface over the ledger: every public
// contract operation is one method that runs as one atomic transaction and
// returns a typed value or a *chain.RevertError.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/deployer"
	"github.com/beamio-APP/BeamioContract/internal/facet"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/registry"
	"github.com/beamio-APP/BeamioContract/internal/store"
)

// Client executes contract operations against a ledger.
type Client struct {
	ledger *ledger.Ledger
	store  *store.Store // owned only when created by Open
	logger *slog.Logger
}

// New wraps an existing ledger.
func New(l *ledger.Ledger, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{ledger: l, logger: logger}
}

// Open opens (or creates) the ledger database at path.
func Open(ctx context.Context, path string, logger *slog.Logger, opts ...ledger.Option) (*Client, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		opts = append([]ledger.Option{ledger.WithLogger(logger)}, opts...)
	}
	l, err := ledger.New(ctx, st, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	c := New(l, logger)
	c.store = st
	return c, nil
}

// Close releases the database if Open created it.
func (c *Client) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Ledger returns the underlying ledger.
func (c *Client) Ledger() *ledger.Ledger { return c.ledger }

// submit runs fn as one transaction from sender. A cancelled context fails
// before anything executes.
func (c *Client) submit(ctx context.Context, sender chain.Address, label string, fn func(*ledger.Tx) error) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.ledger.Submit(ctx, sender, label, fn)
}

func (c *Client) view(ctx context.Context, fn func(*ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ledger.View(ctx, fn)
}

// System resolves the addresses recorded by Bootstrap. Components that were
// not bootstrapped are left zero.
func (c *Client) System(ctx context.Context) (System, error) {
	var sys System
	err := c.view(ctx, func(tx *ledger.Tx) error {
		var err error
		sys, err = loadSystem(tx)
		return err
	})
	return sys, err
}

// --- deployer ---

// Bind latches the deployer at dep to reg. Sender must own the deployer.
func (c *Client) Bind(ctx context.Context, sender, dep, reg chain.Address) (*ledger.Receipt, error) {
	return c.submit(ctx, sender, "bind", func(tx *ledger.Tx) error {
		d, err := deployer.Load(tx, dep)
		if err != nil {
			return err
		}
		return d.Bind(tx, reg)
	})
}

// Binding returns the latch state of the deployer at dep.
func (c *Client) Binding(ctx context.Context, dep chain.Address) (deployer.Binding, error) {
	var b deployer.Binding
	err := c.view(ctx, func(tx *ledger.Tx) error {
		d, err := deployer.Load(tx, dep)
		if err != nil {
			return err
		}
		b, err = d.Binding(tx)
		return err
	})
	return b, err
}

// Predict returns the address the deployer at dep would create for
// (salt, initCode).
func (c *Client) Predict(ctx context.Context, dep chain.Address, salt chain.Hash, initCode []byte) (chain.Address, error) {
	var addr chain.Address
	err := c.view(ctx, func(tx *ledger.Tx) error {
		d, err := deployer.Load(tx, dep)
		if err != nil {
			return err
		}
		addr = d.Predict(salt, initCode)
		return nil
	})
	return addr, err
}

// Deploy calls the deployer directly. Only the bound registry may do so, so
// sender is normally a registry address; operators use it to stage an
// out-of-band deployment that a later provisioning call registers.
func (c *Client) Deploy(ctx context.Context, sender, dep chain.Address, salt chain.Hash, initCode []byte) (chain.Address, *ledger.Receipt, error) {
	var addr chain.Address
	rcpt, err := c.submit(ctx, sender, "deploy", func(tx *ledger.Tx) error {
		d, err := deployer.Load(tx, dep)
		if err != nil {
			return err
		}
		addr, err = d.Deploy(tx, salt, initCode)
		return err
	})
	return addr, rcpt, err
}

// --- account registry ---

func (c *Client) withRegistry(tx *ledger.Tx) (*registry.Registry, error) {
	addr, err := tx.Lookup(NameRegistry)
	if err != nil {
		return nil, err
	}
	return registry.Load(tx, addr)
}

// NextIndexOf returns the creator's next issuance index.
func (c *Client) NextIndexOf(ctx context.Context, creator chain.Address) (uint64, error) {
	var n uint64
	err := c.view(ctx, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		n, err = r.NextIndexOf(tx, creator)
		return err
	})
	return n, err
}

// PredictAddress returns the account address for (creator, index).
func (c *Client) PredictAddress(ctx context.Context, creator chain.Address, index uint64) (chain.Address, error) {
	var addr chain.Address
	err := c.view(ctx, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		addr, err = r.PredictAddress(tx, creator, index)
		return err
	})
	return addr, err
}

// ProvisionSelf provisions sender's own primary account.
func (c *Client) ProvisionSelf(ctx context.Context, sender chain.Address) (registry.Outcome, *ledger.Receipt, error) {
	return c.provision(ctx, sender, "provisionSelf", func(tx *ledger.Tx, r *registry.Registry) (registry.Outcome, error) {
		return r.ProvisionSelf(tx)
	})
}

// ProvisionFor provisions creator's primary account. Sender must be an
// authorized caller.
func (c *Client) ProvisionFor(ctx context.Context, sender, creator chain.Address) (registry.Outcome, *ledger.Receipt, error) {
	return c.provision(ctx, sender, "provisionFor", func(tx *ledger.Tx, r *registry.Registry) (registry.Outcome, error) {
		return r.ProvisionFor(tx, creator)
	})
}

// ProvisionNext provisions an additional account at creator's next index.
func (c *Client) ProvisionNext(ctx context.Context, sender, creator chain.Address) (registry.Outcome, *ledger.Receipt, error) {
	return c.provision(ctx, sender, "provisionNext", func(tx *ledger.Tx, r *registry.Registry) (registry.Outcome, error) {
		return r.ProvisionNext(tx, creator)
	})
}

func (c *Client) provision(ctx context.Context, sender chain.Address, label string, fn func(*ledger.Tx, *registry.Registry) (registry.Outcome, error)) (registry.Outcome, *ledger.Receipt, error) {
	var out registry.Outcome
	rcpt, err := c.submit(ctx, sender, label, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		out, err = fn(tx, r)
		return err
	})
	if chain.IsDerivationMismatch(err) {
		c.logger.Error("provisioning halted on derivation mismatch", "sender", sender.Hex(), "error", err)
	}
	return out, rcpt, err
}

// AccountInitCode returns the init code every account is created from.
func (c *Client) AccountInitCode(ctx context.Context) ([]byte, error) {
	var code []byte
	err := c.view(ctx, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		code, err = r.InitCode(tx)
		return err
	})
	return code, err
}

// IsProvisioned reports whether addr is a registered account.
func (c *Client) IsProvisioned(ctx context.Context, addr chain.Address) (bool, error) {
	var ok bool
	err := c.view(ctx, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		ok, err = r.IsProvisioned(tx, addr)
		return err
	})
	return ok, err
}

// PrimaryOf returns the creator's primary account, or the zero address.
func (c *Client) PrimaryOf(ctx context.Context, creator chain.Address) (chain.Address, error) {
	var addr chain.Address
	err := c.view(ctx, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		addr, err = r.PrimaryOf(tx, creator)
		return err
	})
	return addr, err
}

// AccountsOf lists the creator's registered accounts in index order.
func (c *Client) AccountsOf(ctx context.Context, creator chain.Address) ([]chain.Address, error) {
	var accounts []chain.Address
	err := c.view(ctx, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		accounts, err = r.AccountsOf(tx, creator)
		return err
	})
	return accounts, err
}

// AccountStatus summarizes a creator's standing with the registry.
type AccountStatus struct {
	Creator   chain.Address   `json:"creator"`
	NextIndex uint64          `json:"next_index"`
	Limit     uint64          `json:"limit"`
	Primary   chain.Address   `json:"primary"`
	Predicted chain.Address   `json:"predicted"`
	State     string          `json:"state"`
	Accounts  []chain.Address `json:"accounts"`
}

// Status reports where the creator's primary account stands: absent,
// deployed but unregistered, or registered.
func (c *Client) Status(ctx context.Context, creator chain.Address) (AccountStatus, error) {
	st := AccountStatus{Creator: creator}
	err := c.view(ctx, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		if st.NextIndex, err = r.NextIndexOf(tx, creator); err != nil {
			return err
		}
		if st.Limit, err = r.AccountLimit(tx); err != nil {
			return err
		}
		if st.Primary, err = r.PrimaryOf(tx, creator); err != nil {
			return err
		}
		if st.Predicted, err = r.PredictAddress(tx, creator, 0); err != nil {
			return err
		}
		if st.Accounts, err = r.AccountsOf(tx, creator); err != nil {
			return err
		}

		state := registry.StateAbsent
		deployed, err := tx.HasCode(st.Predicted)
		if err != nil {
			return err
		}
		if deployed {
			state = registry.StateDeployedUnregistered
			registered, err := r.IsProvisioned(tx, st.Predicted)
			if err != nil {
				return err
			}
			if registered {
				state = registry.StateRegistered
			}
		}
		st.State = state.String()
		return nil
	})
	return st, err
}

// SetAuthorizedCaller grants or revokes the authorized-caller role on the
// account registry, and on the collection registry when one exists.
func (c *Client) SetAuthorizedCaller(ctx context.Context, sender, caller chain.Address, enabled bool) (*ledger.Receipt, error) {
	return c.submit(ctx, sender, "setAuthorizedCaller", func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		if err := r.SetAuthorizedCaller(tx, caller, enabled); err != nil {
			return err
		}
		coll, err := c.withCollections(tx)
		if chain.IsRevert(err, chain.CodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return coll.SetAuthorizedCaller(tx, caller, enabled)
	})
}

// IsAuthorizedCaller reports whether caller may provision for others.
func (c *Client) IsAuthorizedCaller(ctx context.Context, caller chain.Address) (bool, error) {
	var ok bool
	err := c.view(ctx, func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		ok, err = r.IsAuthorizedCaller(tx, caller)
		return err
	})
	return ok, err
}

// SetAccountLimit changes the per-creator account cap.
func (c *Client) SetAccountLimit(ctx context.Context, sender chain.Address, limit uint64) (*ledger.Receipt, error) {
	return c.submit(ctx, sender, "setAccountLimit", func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		return r.SetAccountLimit(tx, limit)
	})
}

// TransferAdmin hands the registries' admin role to next.
func (c *Client) TransferAdmin(ctx context.Context, sender, next chain.Address) (*ledger.Receipt, error) {
	return c.submit(ctx, sender, "transferAdmin", func(tx *ledger.Tx) error {
		r, err := c.withRegistry(tx)
		if err != nil {
			return err
		}
		if err := r.TransferAdmin(tx, next); err != nil {
			return err
		}
		coll, err := c.withCollections(tx)
		if chain.IsRevert(err, chain.CodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return coll.TransferAdmin(tx, next)
	})
}

// --- facet registry ---

func (c *Client) withDiamond(tx *ledger.Tx) (*facet.Diamond, error) {
	addr, err := tx.Lookup(NameDiamond)
	if err != nil {
		return nil, err
	}
	return facet.Load(tx, addr)
}

// Cut applies ops to the diamond as one batch.
func (c *Client) Cut(ctx context.Context, sender chain.Address, ops []facet.Op) (*ledger.Receipt, error) {
	return c.submit(ctx, sender, "diamondCut", func(tx *ledger.Tx) error {
		d, err := c.withDiamond(tx)
		if err != nil {
			return err
		}
		return d.Cut(tx, ops)
	})
}

// RouteOf returns the module serving sel, or the zero address.
func (c *Client) RouteOf(ctx context.Context, sel chain.Selector) (chain.Address, error) {
	var addr chain.Address
	err := c.view(ctx, func(tx *ledger.Tx) error {
		d, err := c.withDiamond(tx)
		if err != nil {
			return err
		}
		addr, err = d.RouteOf(tx, sel)
		return err
	})
	return addr, err
}

// AllRoutes returns the diamond's routing table sorted by selector.
func (c *Client) AllRoutes(ctx context.Context) ([]facet.Route, error) {
	var routes []facet.Route
	err := c.view(ctx, func(tx *ledger.Tx) error {
		d, err := c.withDiamond(tx)
		if err != nil {
			return err
		}
		routes, err = d.AllRoutes(tx)
		return err
	})
	return routes, err
}

// Facets returns the routing table grouped by module.
func (c *Client) Facets(ctx context.Context) ([]facet.Facet, error) {
	var facets []facet.Facet
	err := c.view(ctx, func(tx *ledger.Tx) error {
		d, err := c.withDiamond(tx)
		if err != nil {
			return err
		}
		facets, err = d.Facets(tx)
		return err
	})
	return facets, err
}

// InstallModule installs facet module code and returns its address.
func (c *Client) InstallModule(ctx context.Context, sender chain.Address, code []byte) (chain.Address, *ledger.Receipt, error) {
	if len(code) == 0 {
		return chain.Address{}, nil, chain.Revert(chain.CodeInvalidInput, chain.ZeroAddress, "module code is empty")
	}
	var addr chain.Address
	rcpt, err := c.submit(ctx, sender, "installModule", func(tx *ledger.Tx) error {
		var err error
		addr, err = tx.Create(code)
		return err
	})
	return addr, rcpt, err
}

// PlanMigration previews a migration without applying it.
func (c *Client) PlanMigration(ctx context.Context, module chain.Address, selectors []chain.Selector) (facet.Plan, error) {
	var plan facet.Plan
	err := c.view(ctx, func(tx *ledger.Tx) error {
		d, err := c.withDiamond(tx)
		if err != nil {
			return err
		}
		plan, err = facet.PlanMigration(tx, d, module, selectors)
		return err
	})
	return plan, err
}

// Migrate routes selectors to module in one cut. A plan with nothing to do
// submits nothing and returns a nil receipt.
func (c *Client) Migrate(ctx context.Context, sender, module chain.Address, selectors []chain.Selector) (facet.Plan, *ledger.Receipt, error) {
	plan, err := c.PlanMigration(ctx, module, selectors)
	if err != nil {
		return plan, nil, err
	}
	if plan.Empty() {
		c.logger.Info("migration skipped, nothing to change", "module", module.Hex(), "unchanged", len(plan.Unchanged))
		return plan, nil, nil
	}
	rcpt, err := c.submit(ctx, sender, "migrate", func(tx *ledger.Tx) error {
		d, err := c.withDiamond(tx)
		if err != nil {
			return err
		}
		plan, err = facet.Migrate(tx, d, module, selectors)
		return err
	})
	return plan, rcpt, err
}

// --- history ---

// CodeAt returns the code the ledger holds at addr, or nil.
func (c *Client) CodeAt(ctx context.Context, addr chain.Address) ([]byte, error) {
	var code []byte
	err := c.view(ctx, func(tx *ledger.Tx) error {
		var err error
		code, err = tx.CodeAt(addr)
		return err
	})
	return code, err
}

// Transactions returns every recorded transaction, reverted ones included.
func (c *Client) Transactions(ctx context.Context) ([]store.TxRecord, error) {
	return c.ledger.Store().ReadTransactions(ctx)
}

// Events returns committed events matching filter.
func (c *Client) Events(ctx context.Context, filter store.EventFilter) ([]ledger.Event, error) {
	return c.ledger.Events(ctx, filter)
}

// FailedTransaction returns the recorded error of a reverted transaction.
func (c *Client) FailedTransaction(ctx context.Context, id string) (store.TxRecord, error) {
	txs, err := c.Transactions(ctx)
	if err != nil {
		return store.TxRecord{}, err
	}
	for _, rec := range txs {
		if rec.ID == id {
			if rec.Status != store.StatusReverted {
				return rec, fmt.Errorf("transaction %s did not revert", id)
			}
			return rec, nil
		}
	}
	return store.TxRecord{}, fmt.Errorf("transaction %s not found", id)
}
