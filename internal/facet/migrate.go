package facet

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/lmittmann/w3"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
)

// Plan is the selector delta between a diamond's routing table and a
// candidate module.
type Plan struct {
	Module chain.Address
	// Add holds selectors nobody serves yet.
	Add []chain.Selector
	// Replace holds selectors served by another module.
	Replace []chain.Selector
	// Unchanged holds selectors already served by Module.
	Unchanged []chain.Selector
}

// Empty reports whether applying the plan would change nothing.
func (p Plan) Empty() bool {
	return len(p.Add) == 0 && len(p.Replace) == 0
}

// Ops returns the cut batch for the plan: at most one Add and one Replace.
func (p Plan) Ops() []Op {
	var ops []Op
	if len(p.Add) > 0 {
		ops = append(ops, Op{Module: p.Module, Action: Add, Selectors: p.Add})
	}
	if len(p.Replace) > 0 {
		ops = append(ops, Op{Module: p.Module, Action: Replace, Selectors: p.Replace})
	}
	return ops
}

// SelectorsFromABI returns the selectors of every method in an ABI JSON
// document, sorted.
func SelectorsFromABI(abiJSON []byte) ([]chain.Selector, error) {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	sels := make([]chain.Selector, 0, len(parsed.Methods))
	for _, m := range parsed.Methods {
		var sel chain.Selector
		copy(sel[:], m.ID)
		sels = append(sels, sel)
	}
	return normalize(sels), nil
}

// SelectorsFromSignatures returns the selectors of human-readable function
// signatures such as "balanceOf(address)", sorted.
func SelectorsFromSignatures(signatures []string) ([]chain.Selector, error) {
	sels := make([]chain.Selector, 0, len(signatures))
	for _, sig := range signatures {
		fn, err := w3.NewFunc(sig, "")
		if err != nil {
			return nil, fmt.Errorf("parse signature %q: %w", sig, err)
		}
		sels = append(sels, chain.Selector(fn.Selector))
	}
	return normalize(sels), nil
}

// PlanMigration classifies the candidate module's selectors against the
// diamond's current routing table. The cut selector is never planned and
// duplicates collapse. The module must hold code.
func PlanMigration(tx *ledger.Tx, d *Diamond, module chain.Address, selectors []chain.Selector) (Plan, error) {
	if module == chain.ZeroAddress {
		return Plan{}, chain.Revert(chain.CodeInvalidInput, d.addr, "migration target is the zero module")
	}
	has, err := tx.HasCode(module)
	if err != nil {
		return Plan{}, err
	}
	if !has {
		return Plan{}, chain.Revert(chain.CodeNotFound, d.addr, "module %s has no code", module.Hex())
	}

	plan := Plan{Module: module}
	for _, sel := range normalize(selectors) {
		current, err := d.RouteOf(tx, sel)
		if err != nil {
			return Plan{}, err
		}
		switch current {
		case chain.ZeroAddress:
			plan.Add = append(plan.Add, sel)
		case module:
			plan.Unchanged = append(plan.Unchanged, sel)
		default:
			plan.Replace = append(plan.Replace, sel)
		}
	}
	return plan, nil
}

// Migrate plans the migration and applies it as exactly one cut. An empty
// plan submits nothing. Either every selector moves or none does.
func Migrate(tx *ledger.Tx, d *Diamond, module chain.Address, selectors []chain.Selector) (Plan, error) {
	plan, err := PlanMigration(tx, d, module, selectors)
	if err != nil || plan.Empty() {
		return plan, err
	}
	return plan, d.Cut(tx, plan.Ops())
}

// normalize drops the cut selector and duplicates and sorts the rest.
func normalize(sels []chain.Selector) []chain.Selector {
	out := slices.DeleteFunc(slices.Clone(sels), func(s chain.Selector) bool {
		return s == chain.CutSelector
	})
	slices.SortFunc(out, chain.CompareSelectors)
	return slices.Compact(out)
}
