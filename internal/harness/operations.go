package harness

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/client"
	"github.com/beamio-APP/BeamioContract/internal/facet"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/registry"
)

// opFunc executes one step. A nil receipt with a nil error means the step
// submitted nothing.
type opFunc func(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error)

var operations = map[string]opFunc{
	"provision_for":         opProvisionFor,
	"provision_self":        opProvisionSelf,
	"provision_next":        opProvisionNext,
	"deploy":                opDeploy,
	"bind":                  opBind,
	"set_authorized_caller": opSetAuthorizedCaller,
	"set_account_limit":     opSetAccountLimit,
	"transfer_admin":        opTransferAdmin,
	"install_module":        opInstallModule,
	"cut":                   opCut,
	"migrate":               opMigrate,
	"create_collection":     opCreateCollection,
}

func opProvisionFor(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	creator, err := args.address(h.syms, "creator")
	if err != nil {
		return nil, nil, err
	}
	out, rcpt, err := h.client.ProvisionFor(ctx, from, creator)
	return h.accountResult(creator, out, err), rcpt, err
}

func opProvisionSelf(ctx context.Context, h *Harness, from chain.Address, _ stepArgs) (map[string]any, *ledger.Receipt, error) {
	out, rcpt, err := h.client.ProvisionSelf(ctx, from)
	return h.accountResult(from, out, err), rcpt, err
}

func opProvisionNext(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	creator, err := args.address(h.syms, "creator")
	if err != nil {
		return nil, nil, err
	}
	out, rcpt, err := h.client.ProvisionNext(ctx, from, creator)
	return h.accountResult(creator, out, err), rcpt, err
}

// accountResult names the provisioned account and reports the outcome.
func (h *Harness) accountResult(creator chain.Address, out registry.Outcome, err error) map[string]any {
	if err != nil {
		return nil
	}
	h.syms.name(fmt.Sprintf("%s/account/%d", h.syms.render(creator), out.Index), out.Address)
	return map[string]any{
		"address":  out.Address,
		"index":    out.Index,
		"prior":    out.Prior.String(),
		"deployed": out.Deployed,
	}
}

// opDeploy calls a deployer directly with the salt of (creator, index).
// The deployer defaults to the account deployer and the init code to the
// system's account init code.
func opDeploy(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	creator, err := args.address(h.syms, "creator")
	if err != nil {
		return nil, nil, err
	}
	index, err := args.num("index")
	if err != nil {
		return nil, nil, err
	}
	dep := h.system.AccountDeployer
	if args.has("deployer") {
		if dep, err = args.address(h.syms, "deployer"); err != nil {
			return nil, nil, err
		}
	}
	initCode := h.setup.AccountInitCode
	if args.has("init_code") {
		if initCode, err = args.hex("init_code"); err != nil {
			return nil, nil, err
		}
	}

	addr, rcpt, err := h.client.Deploy(ctx, from, dep, chain.SaltFor(creator, index), initCode)
	if err != nil {
		return nil, rcpt, err
	}
	if dep == h.system.AccountDeployer {
		h.syms.name(fmt.Sprintf("%s/account/%d", h.syms.render(creator), index), addr)
	}
	return map[string]any{"address": addr}, rcpt, nil
}

func opBind(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	dep, err := args.address(h.syms, "deployer")
	if err != nil {
		return nil, nil, err
	}
	reg, err := args.address(h.syms, "registry")
	if err != nil {
		return nil, nil, err
	}
	rcpt, err := h.client.Bind(ctx, from, dep, reg)
	return nil, rcpt, err
}

func opSetAuthorizedCaller(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	caller, err := args.address(h.syms, "caller")
	if err != nil {
		return nil, nil, err
	}
	enabled, err := args.flag("enabled")
	if err != nil {
		return nil, nil, err
	}
	rcpt, err := h.client.SetAuthorizedCaller(ctx, from, caller, enabled)
	return nil, rcpt, err
}

func opSetAccountLimit(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	limit, err := args.num("limit")
	if err != nil {
		return nil, nil, err
	}
	rcpt, err := h.client.SetAccountLimit(ctx, from, limit)
	return nil, rcpt, err
}

func opTransferAdmin(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	next, err := args.address(h.syms, "to")
	if err != nil {
		return nil, nil, err
	}
	rcpt, err := h.client.TransferAdmin(ctx, from, next)
	return nil, rcpt, err
}

// opInstallModule installs module code and names it "$module/<name>".
func opInstallModule(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	name, err := args.str("name")
	if err != nil {
		return nil, nil, err
	}
	addr, rcpt, err := h.client.InstallModule(ctx, from, client.ModuleCode(name))
	if err != nil {
		return nil, rcpt, err
	}
	h.syms.name("$module/"+name, addr)
	return map[string]any{"address": addr}, rcpt, nil
}

func opCut(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	raw, err := args.list("ops")
	if err != nil {
		return nil, nil, err
	}
	ops := make([]facet.Op, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("ops[%d]: want a mapping", i)
		}
		opArgs := stepArgs(m)
		name, err := opArgs.str("action")
		if err != nil {
			return nil, nil, fmt.Errorf("ops[%d]: %w", i, err)
		}
		action, err := facet.ParseAction(name)
		if err != nil {
			return nil, nil, fmt.Errorf("ops[%d]: %w", i, err)
		}
		op := facet.Op{Action: action}
		if opArgs.has("module") {
			if op.Module, err = opArgs.address(h.syms, "module"); err != nil {
				return nil, nil, fmt.Errorf("ops[%d]: %w", i, err)
			}
		}
		if op.Selectors, err = opArgs.selectors("signatures"); err != nil {
			return nil, nil, fmt.Errorf("ops[%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	rcpt, err := h.client.Cut(ctx, from, ops)
	return nil, rcpt, err
}

func opMigrate(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	module, err := args.address(h.syms, "module")
	if err != nil {
		return nil, nil, err
	}
	sels, err := args.selectors("signatures")
	if err != nil {
		return nil, nil, err
	}
	plan, rcpt, err := h.client.Migrate(ctx, from, module, sels)
	if err != nil {
		return nil, rcpt, err
	}
	return map[string]any{
		"add":       uint64(len(plan.Add)),
		"replace":   uint64(len(plan.Replace)),
		"unchanged": uint64(len(plan.Unchanged)),
	}, rcpt, nil
}

func opCreateCollection(ctx context.Context, h *Harness, from chain.Address, args stepArgs) (map[string]any, *ledger.Receipt, error) {
	owner, err := args.address(h.syms, "owner")
	if err != nil {
		return nil, nil, err
	}
	initCode, err := args.hex("init_code")
	if err != nil {
		return nil, nil, err
	}
	out, rcpt, err := h.client.CreateCollection(ctx, from, owner, initCode)
	if err != nil {
		return nil, rcpt, err
	}
	h.syms.name(fmt.Sprintf("%s/collection/%d", h.syms.render(owner), out.Index), out.Address)
	return map[string]any{
		"address":  out.Address,
		"index":    out.Index,
		"prior":    out.Prior.String(),
		"deployed": out.Deployed,
	}, rcpt, nil
}

// stepArgs reads typed values out of YAML-decoded step arguments.
type stepArgs map[string]any

func (a stepArgs) has(key string) bool {
	_, ok := a[key]
	return ok
}

func (a stepArgs) str(key string) (string, error) {
	v, ok := a[key].(string)
	if !ok {
		return "", fmt.Errorf("arg %q: want a string, got %T", key, a[key])
	}
	return v, nil
}

func (a stepArgs) address(syms *symbols, key string) (chain.Address, error) {
	s, err := a.str(key)
	if err != nil {
		return chain.Address{}, err
	}
	addr, err := syms.resolve(s)
	if err != nil {
		return chain.Address{}, fmt.Errorf("arg %q: %w", key, err)
	}
	return addr, nil
}

func (a stepArgs) num(key string) (uint64, error) {
	switch v := a[key].(type) {
	case int:
		if v >= 0 {
			return uint64(v), nil
		}
	case uint64:
		return v, nil
	}
	return 0, fmt.Errorf("arg %q: want a non-negative integer, got %v", key, a[key])
}

func (a stepArgs) flag(key string) (bool, error) {
	v, ok := a[key].(bool)
	if !ok {
		return false, fmt.Errorf("arg %q: want a bool, got %T", key, a[key])
	}
	return v, nil
}

func (a stepArgs) hex(key string) ([]byte, error) {
	s, err := a.str(key)
	if err != nil {
		return nil, err
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("arg %q: %w", key, err)
	}
	return b, nil
}

func (a stepArgs) list(key string) ([]any, error) {
	v, ok := a[key].([]any)
	if !ok {
		return nil, fmt.Errorf("arg %q: want a list, got %T", key, a[key])
	}
	return v, nil
}

// selectors accepts function signatures or 0x-prefixed selectors.
func (a stepArgs) selectors(key string) ([]chain.Selector, error) {
	items, err := a.list(key)
	if err != nil {
		return nil, err
	}
	sels := make([]chain.Selector, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("arg %s[%d]: want a string", key, i)
		}
		if sel, err := chain.ParseSelector(s); err == nil {
			sels = append(sels, sel)
			continue
		}
		sels = append(sels, chain.SelectorOf(s))
	}
	return sels, nil
}
