package client

import (
	"context"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/registry"
)

func (c *Client) withCollections(tx *ledger.Tx) (*registry.Collections, error) {
	addr, err := tx.Lookup(NameCollections)
	if err != nil {
		return nil, err
	}
	return registry.LoadCollections(tx, addr)
}

// CreateCollection issues owner's next card collection from initCode.
func (c *Client) CreateCollection(ctx context.Context, sender, owner chain.Address, initCode []byte) (registry.Outcome, *ledger.Receipt, error) {
	var out registry.Outcome
	rcpt, err := c.submit(ctx, sender, "createCollection", func(tx *ledger.Tx) error {
		coll, err := c.withCollections(tx)
		if err != nil {
			return err
		}
		out, err = coll.CreateCollection(tx, owner, initCode)
		return err
	})
	if chain.IsDerivationMismatch(err) {
		c.logger.Error("collection creation halted on derivation mismatch", "owner", owner.Hex(), "error", err)
	}
	return out, rcpt, err
}

// PredictCollection returns the address of owner's index-th collection.
func (c *Client) PredictCollection(ctx context.Context, owner chain.Address, index uint64, initCode []byte) (chain.Address, error) {
	var addr chain.Address
	err := c.view(ctx, func(tx *ledger.Tx) error {
		coll, err := c.withCollections(tx)
		if err != nil {
			return err
		}
		addr, err = coll.PredictCollection(tx, owner, index, initCode)
		return err
	})
	return addr, err
}

// NextCollectionIndexOf returns owner's next collection index.
func (c *Client) NextCollectionIndexOf(ctx context.Context, owner chain.Address) (uint64, error) {
	var n uint64
	err := c.view(ctx, func(tx *ledger.Tx) error {
		coll, err := c.withCollections(tx)
		if err != nil {
			return err
		}
		n, err = coll.NextCollectionIndexOf(tx, owner)
		return err
	})
	return n, err
}

// CollectionsOf lists owner's collections in index order.
func (c *Client) CollectionsOf(ctx context.Context, owner chain.Address) ([]chain.Address, error) {
	var out []chain.Address
	err := c.view(ctx, func(tx *ledger.Tx) error {
		coll, err := c.withCollections(tx)
		if err != nil {
			return err
		}
		out, err = coll.CollectionsOf(tx, owner)
		return err
	})
	return out, err
}
