// Package deployer implements the contract that performs deterministic
// (CREATE2) creations on behalf of exactly one registry.
//
// A Deployer starts Unbound. Its owner binds it to a registry once; from
// then on only that registry may deploy through it, and the binding can
// never change. Prediction always recomputes the CREATE2 algebra with the
// deployer's own address.
package deployer

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/oracle"
)

// Code is the code installed at every deployer address.
var Code = []byte("beamio/deployer/v1")

// Event names.
const (
	EventBound    = "Bound"
	EventDeployed = "Deployed"
)

const (
	slotOwner   = "owner"
	slotBinding = "binding"
)

// Deployer is a handle on a deployer contract. Its state lives in the
// ledger; the handle only carries the address.
type Deployer struct {
	addr chain.Address
}

// Create installs a new deployer owned by owner.
func Create(tx *ledger.Tx, owner chain.Address) (*Deployer, error) {
	if owner == chain.ZeroAddress {
		return nil, chain.Revert(chain.CodeInvalidInput, chain.ZeroAddress, "deployer owner is the zero address")
	}
	addr, err := tx.Create(Code)
	if err != nil {
		return nil, err
	}
	if err := tx.StoreAddress(addr, slotOwner, owner); err != nil {
		return nil, err
	}
	return &Deployer{addr: addr}, nil
}

// At returns a handle without checking what lives at addr.
func At(addr chain.Address) *Deployer {
	return &Deployer{addr: addr}
}

// Load returns a handle after checking that addr holds a deployer.
func Load(tx *ledger.Tx, addr chain.Address) (*Deployer, error) {
	if err := tx.ExpectCode(addr, Code, "deployer"); err != nil {
		return nil, err
	}
	return At(addr), nil
}

// Address returns the deployer's own address.
func (d *Deployer) Address() chain.Address { return d.addr }

// Owner returns the account allowed to bind the deployer.
func (d *Deployer) Owner(tx *ledger.Tx) (chain.Address, error) {
	return tx.LoadAddress(d.addr, slotOwner)
}

// Binding returns the current latch state.
func (d *Deployer) Binding(tx *ledger.Tx) (Binding, error) {
	raw, ok, err := tx.Load(d.addr, slotBinding)
	if err != nil || !ok {
		return Unbound(), err
	}
	return Bound(common.BytesToAddress(raw)), nil
}

// BoundRegistry returns the bound registry, or the zero address.
func (d *Deployer) BoundRegistry(tx *ledger.Tx) (chain.Address, error) {
	b, err := d.Binding(tx)
	if err != nil {
		return chain.Address{}, err
	}
	registry, _ := b.Registry()
	return registry, nil
}

// Bind latches the deployer to registry. Only the owner may bind. Binding
// again to the same registry succeeds without effect; binding to another
// fails with ALREADY_BOUND and leaves the latch untouched.
func (d *Deployer) Bind(tx *ledger.Tx, registry chain.Address) error {
	owner, err := d.Owner(tx)
	if err != nil {
		return err
	}
	if tx.Sender() != owner {
		return chain.Revert(chain.CodeNotAuthorized, d.addr, "only the owner may bind").
			WithDetail("caller", tx.Sender().Hex())
	}

	current, err := d.Binding(tx)
	if err != nil {
		return err
	}
	next, err := current.Bind(d.addr, registry)
	if err != nil {
		return err
	}
	if next == current {
		return nil
	}
	if err := tx.StoreAddress(d.addr, slotBinding, registry); err != nil {
		return err
	}
	return tx.Emit(d.addr, EventBound, chain.Args{"registry": registry})
}

// Deploy creates initCode at the CREATE2 address for salt and returns it.
// Only the bound registry may deploy; while unbound nobody may. An
// occupied target fails with DEPLOYMENT_COLLISION.
func (d *Deployer) Deploy(tx *ledger.Tx, salt chain.Hash, initCode []byte) (chain.Address, error) {
	registry, err := d.BoundRegistry(tx)
	if err != nil {
		return chain.Address{}, err
	}
	if registry == chain.ZeroAddress || tx.Sender() != registry {
		return chain.Address{}, chain.Revert(chain.CodeNotAuthorized, d.addr,
			"caller %s is not the bound registry", tx.Sender().Hex())
	}

	addr, err := tx.Create2(d.addr, salt, initCode)
	if err != nil {
		return chain.Address{}, err
	}
	err = tx.Emit(d.addr, EventDeployed, chain.Args{
		"salt":     salt,
		"address":  addr,
		"codeHash": chain.InitCodeHash(initCode),
	})
	return addr, err
}

// Predict returns the address Deploy would produce for (salt, initCode),
// using this deployer's own address.
func (d *Deployer) Predict(salt chain.Hash, initCode []byte) chain.Address {
	return oracle.PredictInitCode(d.addr, salt, initCode)
}

// ComputeSalt returns the salt for a creator's index-th creation.
func ComputeSalt(creator chain.Address, index uint64) chain.Hash {
	return chain.SaltFor(creator, index)
}
