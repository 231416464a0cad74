// Package registry implements the provisioning registries: the account
// factory that gives every creator one deterministic primary account, and
// the collection factory that issues card collections per owner.
//
// Registries own authorization and bookkeeping. Raw creation is delegated to
// a Deployer bound to the registry. Provisioning is idempotent: the state of
// the predicted address is re-read inside the executing transaction and the
// call deploys, registers, or returns the existing address accordingly.
package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/deployer"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
)

// Code is the code installed at every account registry address.
var Code = []byte("beamio/registry/v1")

// Event names.
const (
	EventAccountCreated      = "AccountCreated"
	EventAccountLimitChanged = "AccountLimitChanged"
)

const accountKind = "account"

// Config is the constructor input of an account registry.
type Config struct {
	Admin        chain.Address
	Deployer     chain.Address
	AccountLimit uint64
	InitCode     []byte
}

// Registry is a handle on an account registry contract.
type Registry struct {
	access
	deployerAt func(chain.Address) Deployer
}

func newRegistry(addr chain.Address) *Registry {
	return &Registry{
		access:     access{addr: addr},
		deployerAt: func(a chain.Address) Deployer { return deployer.At(a) },
	}
}

// Create installs a new account registry. The deployer must already exist;
// binding it to the new registry is the deployer owner's job.
func Create(tx *ledger.Tx, cfg Config) (*Registry, error) {
	if cfg.Admin == chain.ZeroAddress {
		return nil, chain.Revert(chain.CodeInvalidInput, chain.ZeroAddress, "registry admin is the zero address")
	}
	if len(cfg.InitCode) == 0 {
		return nil, chain.Revert(chain.CodeInvalidInput, chain.ZeroAddress, "account init code is empty")
	}
	if _, err := deployer.Load(tx, cfg.Deployer); err != nil {
		return nil, err
	}

	addr, err := tx.Create(Code)
	if err != nil {
		return nil, err
	}
	if err := tx.StoreAddress(addr, slotAdmin, cfg.Admin); err != nil {
		return nil, err
	}
	if err := tx.StoreAddress(addr, slotDeployer, cfg.Deployer); err != nil {
		return nil, err
	}
	if err := tx.StoreUint(addr, slotLimit, cfg.AccountLimit); err != nil {
		return nil, err
	}
	if err := tx.Store(addr, slotInitCode, cfg.InitCode); err != nil {
		return nil, err
	}
	return newRegistry(addr), nil
}

// At returns a handle without checking what lives at addr.
func At(addr chain.Address) *Registry {
	return newRegistry(addr)
}

// Load returns a handle after checking that addr holds an account registry.
func Load(tx *ledger.Tx, addr chain.Address) (*Registry, error) {
	if err := tx.ExpectCode(addr, Code, "account registry"); err != nil {
		return nil, err
	}
	return At(addr), nil
}

// Deployer returns the address of the deployer the registry drives.
func (r *Registry) Deployer(tx *ledger.Tx) (chain.Address, error) {
	return tx.LoadAddress(r.addr, slotDeployer)
}

// InitCode returns the init code every account is created from.
func (r *Registry) InitCode(tx *ledger.Tx) ([]byte, error) {
	code, _, err := tx.Load(r.addr, slotInitCode)
	return code, err
}

// AccountLimit returns the per-creator cap on issuance indexes.
func (r *Registry) AccountLimit(tx *ledger.Tx) (uint64, error) {
	return tx.LoadUint(r.addr, slotLimit)
}

// SetAccountLimit changes the per-creator cap. Admin-gated.
func (r *Registry) SetAccountLimit(tx *ledger.Tx, limit uint64) error {
	if err := r.requireAdmin(tx); err != nil {
		return err
	}
	prev, err := r.AccountLimit(tx)
	if err != nil || prev == limit {
		return err
	}
	if err := tx.StoreUint(r.addr, slotLimit, limit); err != nil {
		return err
	}
	return tx.Emit(r.addr, EventAccountLimitChanged, chain.Args{"previous": prev, "limit": limit})
}

// NextIndexOf returns the issuance index the creator's next provisioning
// would consume.
func (r *Registry) NextIndexOf(tx *ledger.Tx, creator chain.Address) (uint64, error) {
	return tx.LoadUint(r.addr, nextKey(creator))
}

// PredictAddress returns the account address for (creator, index), as the
// bound deployer computes it with the registry's init code.
func (r *Registry) PredictAddress(tx *ledger.Tx, creator chain.Address, index uint64) (chain.Address, error) {
	dep, err := r.boundDeployer(tx)
	if err != nil {
		return chain.Address{}, err
	}
	initCode, err := r.InitCode(tx)
	if err != nil {
		return chain.Address{}, err
	}
	return dep.Predict(deployer.ComputeSalt(creator, index), initCode), nil
}

// IsProvisioned reports whether addr is a registered account.
func (r *Registry) IsProvisioned(tx *ledger.Tx, addr chain.Address) (bool, error) {
	return tx.LoadBool(r.addr, registeredKey(addr))
}

// PrimaryOf returns the creator's primary (index 0) account, or the zero
// address.
func (r *Registry) PrimaryOf(tx *ledger.Tx, creator chain.Address) (chain.Address, error) {
	return tx.LoadAddress(r.addr, primaryKey(creator))
}

// AccountsOf lists the creator's registered accounts in index order.
func (r *Registry) AccountsOf(tx *ledger.Tx, creator chain.Address) ([]chain.Address, error) {
	slots, err := tx.Scan(r.addr, slotPrefix(accountKind, creator))
	if err != nil {
		return nil, err
	}
	accounts := make([]chain.Address, 0, len(slots))
	for _, s := range slots {
		accounts = append(accounts, common.BytesToAddress(s.Value))
	}
	return accounts, nil
}

// ProvisionSelf provisions the caller's own primary account.
func (r *Registry) ProvisionSelf(tx *ledger.Tx) (Outcome, error) {
	return r.provisionPrimary(tx, tx.Sender())
}

// ProvisionFor provisions creator's primary account on their behalf. The
// caller must be an authorized caller.
//
// The call is idempotent. With the primary already recorded it returns it
// unchanged; with the account deployed but unrecorded it records it; with
// nothing deployed it deploys and records. Fails LIMIT_EXCEEDED once the
// creator's next index reaches the account limit.
//
// The limit is checked before the primary lookup, so a creator at the
// limit gets LIMIT_EXCEEDED even when a primary is already recorded. Off
// chain callers that only need the existing account should read PrimaryOf,
// which never consults the limit. Raising the limit makes repeat calls
// return the recorded primary again.
func (r *Registry) ProvisionFor(tx *ledger.Tx, creator chain.Address) (Outcome, error) {
	if err := r.requireAuthorized(tx); err != nil {
		return Outcome{}, err
	}
	return r.provisionPrimary(tx, creator)
}

// ProvisionNext provisions an additional account for creator at the next
// free index, whether or not a primary exists. Authorized callers only.
// Index 0 stays the primary.
func (r *Registry) ProvisionNext(tx *ledger.Tx, creator chain.Address) (Outcome, error) {
	if err := r.requireAuthorized(tx); err != nil {
		return Outcome{}, err
	}
	if creator == chain.ZeroAddress {
		return Outcome{}, chain.Revert(chain.CodeInvalidInput, r.addr, "creator is the zero address")
	}
	index, err := r.checkLimit(tx, creator)
	if err != nil {
		return Outcome{}, err
	}
	return r.provisionAt(tx, creator, index)
}

func (r *Registry) provisionPrimary(tx *ledger.Tx, creator chain.Address) (Outcome, error) {
	if creator == chain.ZeroAddress {
		return Outcome{}, chain.Revert(chain.CodeInvalidInput, r.addr, "creator is the zero address")
	}
	index, err := r.checkLimit(tx, creator)
	if err != nil {
		return Outcome{}, err
	}

	primary, err := r.PrimaryOf(tx, creator)
	if err != nil {
		return Outcome{}, err
	}
	if primary != chain.ZeroAddress {
		return Outcome{Address: primary, Index: 0, Prior: StateRegistered}, nil
	}
	return r.provisionAt(tx, creator, index)
}

// checkLimit returns the creator's next index, or LIMIT_EXCEEDED.
func (r *Registry) checkLimit(tx *ledger.Tx, creator chain.Address) (uint64, error) {
	index, err := r.NextIndexOf(tx, creator)
	if err != nil {
		return 0, err
	}
	limit, err := r.AccountLimit(tx)
	if err != nil {
		return 0, err
	}
	if index >= limit {
		return 0, chain.Revert(chain.CodeLimitExceeded, r.addr,
			"creator %s reached the account limit %d", creator.Hex(), limit).
			WithDetail("creator", creator.Hex())
	}
	return index, nil
}

func (r *Registry) provisionAt(tx *ledger.Tx, creator chain.Address, index uint64) (Outcome, error) {
	dep, err := r.boundDeployer(tx)
	if err != nil {
		return Outcome{}, err
	}
	initCode, err := r.InitCode(tx)
	if err != nil {
		return Outcome{}, err
	}

	rec := reconciler{
		registry: r.addr,
		deployer: dep,
		isRegistered: func(a chain.Address) (bool, error) {
			return r.IsProvisioned(tx, a)
		},
	}
	out, err := rec.run(tx, creator, index, initCode)
	if err != nil || !out.Mutated() {
		return out, err
	}

	if err := tx.StoreAddress(r.addr, slotKey(accountKind, creator, index), out.Address); err != nil {
		return Outcome{}, err
	}
	if err := tx.StoreBool(r.addr, registeredKey(out.Address), true); err != nil {
		return Outcome{}, err
	}
	if index == 0 {
		if err := tx.StoreAddress(r.addr, primaryKey(creator), out.Address); err != nil {
			return Outcome{}, err
		}
	}
	if err := tx.StoreUint(r.addr, nextKey(creator), index+1); err != nil {
		return Outcome{}, err
	}
	err = tx.Emit(r.addr, EventAccountCreated, chain.Args{
		"creator":  creator,
		"account":  out.Address,
		"index":    index,
		"deployed": out.Deployed,
	})
	return out, err
}

func (r *Registry) boundDeployer(tx *ledger.Tx) (Deployer, error) {
	addr, err := r.Deployer(tx)
	if err != nil {
		return nil, err
	}
	if addr == chain.ZeroAddress {
		return nil, chain.Revert(chain.CodeNotFound, r.addr, "registry has no deployer")
	}
	return r.deployerAt(addr), nil
}
