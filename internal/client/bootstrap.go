package client

import (
	"context"
	"sort"
	"strings"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/config"
	"github.com/beamio-APP/BeamioContract/internal/deployer"
	"github.com/beamio-APP/BeamioContract/internal/facet"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/registry"
)

// Names under which Bootstrap records the system's contracts.
const (
	NameAccountDeployer    = "account-deployer"
	NameRegistry           = "registry"
	NameCollectionDeployer = "collection-deployer"
	NameCollections        = "collections"
	NameDiamond            = "diamond"
	FacetPrefix            = "facet/"
)

// System is the set of contracts created by Bootstrap.
type System struct {
	AccountDeployer    chain.Address            `json:"account_deployer"`
	Registry           chain.Address            `json:"registry"`
	CollectionDeployer chain.Address            `json:"collection_deployer,omitempty"`
	Collections        chain.Address            `json:"collections,omitempty"`
	Diamond            chain.Address            `json:"diamond"`
	Facets             map[string]chain.Address `json:"facets,omitempty"`
}

// ModuleCode is the code installed for a named facet module.
func ModuleCode(name string) []byte {
	return []byte("beamio/facet/" + name)
}

// Bootstrap creates a complete system from setup in a single transaction
// sent by the admin: the account deployer and registry, bound to each
// other; the collection deployer and registry when the collection limit is
// non-zero; the diamond with every facet routed. Paymasters become
// authorized callers. Bootstrapping twice fails because system names are
// assigned once.
func (c *Client) Bootstrap(ctx context.Context, setup config.Setup) (System, *ledger.Receipt, error) {
	sys := System{Facets: make(map[string]chain.Address)}
	rcpt, err := c.submit(ctx, setup.Admin, "bootstrap", func(tx *ledger.Tx) error {
		var err error
		if sys.AccountDeployer, sys.Registry, err = bootstrapAccounts(tx, setup); err != nil {
			return err
		}
		if setup.CollectionLimit > 0 {
			if sys.CollectionDeployer, sys.Collections, err = bootstrapCollections(tx, setup); err != nil {
				return err
			}
		}
		if sys.Diamond, err = bootstrapDiamond(tx, setup, sys.Facets); err != nil {
			return err
		}
		return nameSystem(tx, sys)
	})
	if err != nil {
		return System{}, rcpt, err
	}
	c.logger.Info("system bootstrapped",
		"registry", sys.Registry.Hex(), "diamond", sys.Diamond.Hex(), "facets", len(sys.Facets))
	return sys, rcpt, nil
}

func bootstrapAccounts(tx *ledger.Tx, setup config.Setup) (chain.Address, chain.Address, error) {
	dep, err := deployer.Create(tx, setup.Admin)
	if err != nil {
		return chain.Address{}, chain.Address{}, err
	}
	reg, err := registry.Create(tx, registry.Config{
		Admin:        setup.Admin,
		Deployer:     dep.Address(),
		AccountLimit: setup.AccountLimit,
		InitCode:     setup.AccountInitCode,
	})
	if err != nil {
		return chain.Address{}, chain.Address{}, err
	}
	if err := dep.Bind(tx, reg.Address()); err != nil {
		return chain.Address{}, chain.Address{}, err
	}
	for _, pm := range setup.Paymasters {
		if err := reg.SetAuthorizedCaller(tx, pm, true); err != nil {
			return chain.Address{}, chain.Address{}, err
		}
	}
	return dep.Address(), reg.Address(), nil
}

func bootstrapCollections(tx *ledger.Tx, setup config.Setup) (chain.Address, chain.Address, error) {
	dep, err := deployer.Create(tx, setup.Admin)
	if err != nil {
		return chain.Address{}, chain.Address{}, err
	}
	coll, err := registry.CreateCollections(tx, registry.CollectionConfig{
		Admin:           setup.Admin,
		Deployer:        dep.Address(),
		CollectionLimit: setup.CollectionLimit,
	})
	if err != nil {
		return chain.Address{}, chain.Address{}, err
	}
	if err := dep.Bind(tx, coll.Address()); err != nil {
		return chain.Address{}, chain.Address{}, err
	}
	for _, pm := range setup.Paymasters {
		if err := coll.SetAuthorizedCaller(tx, pm, true); err != nil {
			return chain.Address{}, chain.Address{}, err
		}
	}
	return dep.Address(), coll.Address(), nil
}

func bootstrapDiamond(tx *ledger.Tx, setup config.Setup, modules map[string]chain.Address) (chain.Address, error) {
	d, err := facet.Create(tx, setup.Admin)
	if err != nil {
		return chain.Address{}, err
	}
	var ops []facet.Op
	for _, f := range setup.Facets {
		module, err := tx.Create(ModuleCode(f.Name))
		if err != nil {
			return chain.Address{}, err
		}
		modules[f.Name] = module
		ops = append(ops, facet.Op{Module: module, Action: facet.Add, Selectors: f.Selectors})
	}
	if len(ops) > 0 {
		if err := d.Cut(tx, ops); err != nil {
			return chain.Address{}, err
		}
	}
	return d.Address(), nil
}

func nameSystem(tx *ledger.Tx, sys System) error {
	names := map[string]chain.Address{
		NameAccountDeployer: sys.AccountDeployer,
		NameRegistry:        sys.Registry,
		NameDiamond:         sys.Diamond,
	}
	if sys.Collections != chain.ZeroAddress {
		names[NameCollectionDeployer] = sys.CollectionDeployer
		names[NameCollections] = sys.Collections
	}
	for name, addr := range sys.Facets {
		names[FacetPrefix+name] = addr
	}

	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := tx.Name(k, names[k]); err != nil {
			return err
		}
	}
	return nil
}

func loadSystem(tx *ledger.Tx) (System, error) {
	sys := System{Facets: make(map[string]chain.Address)}
	targets := map[string]*chain.Address{
		NameAccountDeployer:    &sys.AccountDeployer,
		NameRegistry:           &sys.Registry,
		NameCollectionDeployer: &sys.CollectionDeployer,
		NameCollections:        &sys.Collections,
		NameDiamond:            &sys.Diamond,
	}
	names, err := tx.Names()
	if err != nil {
		return System{}, err
	}
	for _, rec := range names {
		if dst, ok := targets[rec.Name]; ok {
			*dst = rec.Address
		} else if name, ok := strings.CutPrefix(rec.Name, FacetPrefix); ok {
			sys.Facets[name] = rec.Address
		}
	}
	if sys.Registry == chain.ZeroAddress {
		return System{}, chain.Revert(chain.CodeNotFound, chain.ZeroAddress, "ledger has not been bootstrapped")
	}
	return sys, nil
}
