// Package facet implements the facet registry ("diamond"): a routing table
// from 4-byte function selectors to implementation modules, mutated only
// through an all-or-nothing batched cut.
package facet

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
)

// Code is the code installed at every diamond address.
var Code = []byte("beamio/diamond/v1")

// EventDiamondCut is emitted once per applied cut.
const EventDiamondCut = "DiamondCut"

const (
	slotOwner   = "owner"
	routePrefix = "route/"
)

// Action is a cut operation kind. Values follow EIP-2535 FacetCutAction.
type Action uint8

const (
	Add Action = iota
	Replace
	Remove
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Replace:
		return "replace"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// ParseAction parses "add", "replace" or "remove", case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "add":
		return Add, nil
	case "replace":
		return Replace, nil
	case "remove":
		return Remove, nil
	default:
		return 0, fmt.Errorf("unknown cut action %q", s)
	}
}

// Op is one operation of a cut batch. Remove ops carry the zero module.
type Op struct {
	Module    chain.Address
	Action    Action
	Selectors []chain.Selector
}

// Route maps a selector to the module serving it.
type Route struct {
	Selector chain.Selector
	Module   chain.Address
}

// Facet is a module and every selector routed to it, sorted.
type Facet struct {
	Module    chain.Address
	Selectors []chain.Selector
}

// Diamond is a handle on a facet registry contract.
type Diamond struct {
	addr chain.Address
}

// Create installs a new diamond owned by owner. The cut selector is routed
// to the diamond itself and can never be cut.
func Create(tx *ledger.Tx, owner chain.Address) (*Diamond, error) {
	if owner == chain.ZeroAddress {
		return nil, chain.Revert(chain.CodeInvalidInput, chain.ZeroAddress, "diamond owner is the zero address")
	}
	addr, err := tx.Create(Code)
	if err != nil {
		return nil, err
	}
	if err := tx.StoreAddress(addr, slotOwner, owner); err != nil {
		return nil, err
	}
	if err := tx.StoreAddress(addr, routeKey(chain.CutSelector), addr); err != nil {
		return nil, err
	}
	return &Diamond{addr: addr}, nil
}

// At returns a handle without checking what lives at addr.
func At(addr chain.Address) *Diamond {
	return &Diamond{addr: addr}
}

// Load returns a handle after checking that addr holds a diamond.
func Load(tx *ledger.Tx, addr chain.Address) (*Diamond, error) {
	if err := tx.ExpectCode(addr, Code, "diamond"); err != nil {
		return nil, err
	}
	return At(addr), nil
}

// Address returns the diamond's address.
func (d *Diamond) Address() chain.Address { return d.addr }

// Owner returns the account allowed to cut.
func (d *Diamond) Owner(tx *ledger.Tx) (chain.Address, error) {
	return tx.LoadAddress(d.addr, slotOwner)
}

// RouteOf returns the module serving sel, or the zero address.
func (d *Diamond) RouteOf(tx *ledger.Tx, sel chain.Selector) (chain.Address, error) {
	return tx.LoadAddress(d.addr, routeKey(sel))
}

// AllRoutes returns the routing table sorted by selector.
func (d *Diamond) AllRoutes(tx *ledger.Tx) ([]Route, error) {
	slots, err := tx.Scan(d.addr, routePrefix)
	if err != nil {
		return nil, err
	}
	routes := make([]Route, 0, len(slots))
	for _, s := range slots {
		sel, err := chain.ParseSelector(strings.TrimPrefix(s.Key, routePrefix))
		if err != nil {
			return nil, fmt.Errorf("route slot %q: %w", s.Key, err)
		}
		routes = append(routes, Route{Selector: sel, Module: common.BytesToAddress(s.Value)})
	}
	return routes, nil
}

// Facets groups the routing table by module, ordered by module address.
func (d *Diamond) Facets(tx *ledger.Tx) ([]Facet, error) {
	routes, err := d.AllRoutes(tx)
	if err != nil {
		return nil, err
	}
	byModule := make(map[chain.Address][]chain.Selector)
	for _, r := range routes {
		byModule[r.Module] = append(byModule[r.Module], r.Selector)
	}
	facets := make([]Facet, 0, len(byModule))
	for module, sels := range byModule {
		facets = append(facets, Facet{Module: module, Selectors: sels})
	}
	slices.SortFunc(facets, func(a, b Facet) int {
		return chain.CompareAddresses(a.Module, b.Module)
	})
	return facets, nil
}

// FacetSelectors returns the selectors routed to module, sorted.
func (d *Diamond) FacetSelectors(tx *ledger.Tx, module chain.Address) ([]chain.Selector, error) {
	routes, err := d.AllRoutes(tx)
	if err != nil {
		return nil, err
	}
	var sels []chain.Selector
	for _, r := range routes {
		if r.Module == module {
			sels = append(sels, r.Selector)
		}
	}
	return sels, nil
}

// Cut applies ops as one batch. Owner-gated.
//
// Every op is validated against the table as left by the ops before it;
// only when the whole batch validates is anything written. A rejected batch
// fails with CUT_REJECTED and leaves the table untouched.
func (d *Diamond) Cut(tx *ledger.Tx, ops []Op) error {
	owner, err := d.Owner(tx)
	if err != nil {
		return err
	}
	if tx.Sender() != owner {
		return chain.Revert(chain.CodeNotAuthorized, d.addr, "only the owner may cut").
			WithDetail("caller", tx.Sender().Hex())
	}
	if len(ops) == 0 {
		return d.reject(-1, "empty cut")
	}

	routes, err := d.AllRoutes(tx)
	if err != nil {
		return err
	}
	staged := make(map[chain.Selector]chain.Address, len(routes))
	for _, r := range routes {
		staged[r.Selector] = r.Module
	}

	// Validate all.
	touched := make(map[chain.Selector]struct{})
	for i, op := range ops {
		if err := d.validate(i, op, staged); err != nil {
			return err
		}
		for _, sel := range op.Selectors {
			touched[sel] = struct{}{}
			if op.Action == Remove {
				delete(staged, sel)
			} else {
				staged[sel] = op.Module
			}
		}
	}

	// Apply all.
	keys := make([]chain.Selector, 0, len(touched))
	for sel := range touched {
		keys = append(keys, sel)
	}
	slices.SortFunc(keys, chain.CompareSelectors)
	for _, sel := range keys {
		if module, ok := staged[sel]; ok {
			err = tx.StoreAddress(d.addr, routeKey(sel), module)
		} else {
			err = tx.Delete(d.addr, routeKey(sel))
		}
		if err != nil {
			return err
		}
	}

	return tx.Emit(d.addr, EventDiamondCut, chain.Args{"ops": opsArgs(ops)})
}

func (d *Diamond) validate(i int, op Op, staged map[chain.Selector]chain.Address) error {
	if len(op.Selectors) == 0 {
		return d.reject(i, "no selectors")
	}
	switch op.Action {
	case Add, Replace:
		if op.Module == chain.ZeroAddress {
			return d.reject(i, "%s to the zero module", op.Action)
		}
	case Remove:
		if op.Module != chain.ZeroAddress {
			return d.reject(i, "remove must name the zero module")
		}
	default:
		return d.reject(i, "unknown %s", op.Action)
	}

	seen := make(map[chain.Selector]struct{}, len(op.Selectors))
	for _, sel := range op.Selectors {
		if sel == chain.CutSelector {
			return d.rejectSelector(i, sel, "the cut selector cannot be cut")
		}
		if _, dup := seen[sel]; dup {
			return d.rejectSelector(i, sel, "selector repeated within one op")
		}
		seen[sel] = struct{}{}

		current, routed := staged[sel]
		switch op.Action {
		case Add:
			if routed {
				return d.rejectSelector(i, sel, "already routed to %s", current.Hex())
			}
		case Replace:
			if !routed {
				return d.rejectSelector(i, sel, "not routed")
			}
			if current == op.Module {
				return d.rejectSelector(i, sel, "already routed to the same module")
			}
		case Remove:
			if !routed {
				return d.rejectSelector(i, sel, "not routed")
			}
		}
	}
	return nil
}

func (d *Diamond) reject(i int, format string, args ...any) *chain.RevertError {
	err := chain.Revert(chain.CodeCutRejected, d.addr, format, args...)
	if i >= 0 {
		err = err.WithDetail("op", fmt.Sprint(i))
	}
	return err
}

func (d *Diamond) rejectSelector(i int, sel chain.Selector, format string, args ...any) *chain.RevertError {
	return d.reject(i, sel.String()+": "+format, args...).WithDetail("selector", sel.String())
}

func routeKey(sel chain.Selector) string {
	return routePrefix + sel.String()
}

func opsArgs(ops []Op) []any {
	out := make([]any, 0, len(ops))
	for _, op := range ops {
		sels := make([]string, len(op.Selectors))
		for i, s := range op.Selectors {
			sels[i] = s.String()
		}
		out = append(out, chain.Args{
			"module":    op.Module,
			"action":    op.Action.String(),
			"selectors": sels,
		})
	}
	return out
}
