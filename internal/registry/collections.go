package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/deployer"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
)

// CollectionCode is the code installed at every collection registry address.
var CollectionCode = []byte("beamio/collections/v1")

// EventCollectionCreated is emitted when a collection is recorded.
const EventCollectionCreated = "CollectionCreated"

const collectionKind = "collection"

// CollectionConfig is the constructor input of a collection registry.
type CollectionConfig struct {
	Admin           chain.Address
	Deployer        chain.Address
	CollectionLimit uint64
}

// Collections is a handle on a collection registry ("card factory"). Each
// owner holds up to CollectionLimit collections, one per issuance index,
// each created from caller-supplied init code through the registry's own
// deployer.
type Collections struct {
	access
	deployerAt func(chain.Address) Deployer
}

func newCollections(addr chain.Address) *Collections {
	return &Collections{
		access:     access{addr: addr},
		deployerAt: func(a chain.Address) Deployer { return deployer.At(a) },
	}
}

// CreateCollections installs a new collection registry.
func CreateCollections(tx *ledger.Tx, cfg CollectionConfig) (*Collections, error) {
	if cfg.Admin == chain.ZeroAddress {
		return nil, chain.Revert(chain.CodeInvalidInput, chain.ZeroAddress, "collection admin is the zero address")
	}
	if _, err := deployer.Load(tx, cfg.Deployer); err != nil {
		return nil, err
	}

	addr, err := tx.Create(CollectionCode)
	if err != nil {
		return nil, err
	}
	if err := tx.StoreAddress(addr, slotAdmin, cfg.Admin); err != nil {
		return nil, err
	}
	if err := tx.StoreAddress(addr, slotDeployer, cfg.Deployer); err != nil {
		return nil, err
	}
	if err := tx.StoreUint(addr, slotLimit, cfg.CollectionLimit); err != nil {
		return nil, err
	}
	return newCollections(addr), nil
}

// CollectionsAt returns a handle without checking what lives at addr.
func CollectionsAt(addr chain.Address) *Collections {
	return newCollections(addr)
}

// LoadCollections returns a handle after checking that addr holds a
// collection registry.
func LoadCollections(tx *ledger.Tx, addr chain.Address) (*Collections, error) {
	if err := tx.ExpectCode(addr, CollectionCode, "collection registry"); err != nil {
		return nil, err
	}
	return CollectionsAt(addr), nil
}

// Deployer returns the address of the deployer the registry drives.
func (c *Collections) Deployer(tx *ledger.Tx) (chain.Address, error) {
	return tx.LoadAddress(c.addr, slotDeployer)
}

// CollectionLimit returns the per-owner cap.
func (c *Collections) CollectionLimit(tx *ledger.Tx) (uint64, error) {
	return tx.LoadUint(c.addr, slotLimit)
}

// NextCollectionIndexOf returns the index the owner's next collection
// would consume.
func (c *Collections) NextCollectionIndexOf(tx *ledger.Tx, owner chain.Address) (uint64, error) {
	return tx.LoadUint(c.addr, nextKey(owner))
}

// PredictCollection returns the address a collection created from initCode
// at (owner, index) will occupy.
func (c *Collections) PredictCollection(tx *ledger.Tx, owner chain.Address, index uint64, initCode []byte) (chain.Address, error) {
	dep, err := c.boundDeployer(tx)
	if err != nil {
		return chain.Address{}, err
	}
	return dep.Predict(deployer.ComputeSalt(owner, index), initCode), nil
}

// IsCollection reports whether addr is a registered collection.
func (c *Collections) IsCollection(tx *ledger.Tx, addr chain.Address) (bool, error) {
	return tx.LoadBool(c.addr, registeredKey(addr))
}

// CollectionsOf lists the owner's collections in index order.
func (c *Collections) CollectionsOf(tx *ledger.Tx, owner chain.Address) ([]chain.Address, error) {
	slots, err := tx.Scan(c.addr, slotPrefix(collectionKind, owner))
	if err != nil {
		return nil, err
	}
	out := make([]chain.Address, 0, len(slots))
	for _, s := range slots {
		out = append(out, common.BytesToAddress(s.Value))
	}
	return out, nil
}

// CreateCollection provisions the owner's next collection from initCode.
// Authorized callers only. The predicted address is reconciled like an
// account: deployed if absent, recorded if unrecorded, returned unchanged
// if already recorded.
func (c *Collections) CreateCollection(tx *ledger.Tx, owner chain.Address, initCode []byte) (Outcome, error) {
	if err := c.requireAuthorized(tx); err != nil {
		return Outcome{}, err
	}
	if owner == chain.ZeroAddress {
		return Outcome{}, chain.Revert(chain.CodeInvalidInput, c.addr, "owner is the zero address")
	}
	if len(initCode) == 0 {
		return Outcome{}, chain.Revert(chain.CodeInvalidInput, c.addr, "collection init code is empty")
	}

	index, err := c.NextCollectionIndexOf(tx, owner)
	if err != nil {
		return Outcome{}, err
	}
	limit, err := c.CollectionLimit(tx)
	if err != nil {
		return Outcome{}, err
	}
	if index >= limit {
		return Outcome{}, chain.Revert(chain.CodeLimitExceeded, c.addr,
			"owner %s reached the collection limit %d", owner.Hex(), limit).
			WithDetail("owner", owner.Hex())
	}

	dep, err := c.boundDeployer(tx)
	if err != nil {
		return Outcome{}, err
	}
	rec := reconciler{
		registry: c.addr,
		deployer: dep,
		isRegistered: func(a chain.Address) (bool, error) {
			return c.IsCollection(tx, a)
		},
	}
	out, err := rec.run(tx, owner, index, initCode)
	if err != nil || !out.Mutated() {
		return out, err
	}

	if err := tx.StoreAddress(c.addr, slotKey(collectionKind, owner, index), out.Address); err != nil {
		return Outcome{}, err
	}
	if err := tx.StoreBool(c.addr, registeredKey(out.Address), true); err != nil {
		return Outcome{}, err
	}
	if err := tx.StoreUint(c.addr, nextKey(owner), index+1); err != nil {
		return Outcome{}, err
	}
	err = tx.Emit(c.addr, EventCollectionCreated, chain.Args{
		"owner":      owner,
		"collection": out.Address,
		"index":      index,
		"deployed":   out.Deployed,
	})
	return out, err
}

func (c *Collections) boundDeployer(tx *ledger.Tx) (Deployer, error) {
	addr, err := c.Deployer(tx)
	if err != nil {
		return nil, err
	}
	if addr == chain.ZeroAddress {
		return nil, chain.Revert(chain.CodeNotFound, c.addr, "collection registry has no deployer")
	}
	return c.deployerAt(addr), nil
}
