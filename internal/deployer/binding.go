package deployer

import "github.com/beamio-APP/BeamioContract/internal/chain"

// Binding is the deployer's one-way latch: Unbound or Bound(registry).
// The zero value is Unbound.
type Binding struct {
	registry chain.Address
	bound    bool
}

// Unbound returns the initial binding.
func Unbound() Binding { return Binding{} }

// Bound returns a binding latched to registry.
func Bound(registry chain.Address) Binding {
	return Binding{registry: registry, bound: true}
}

// Registry returns the bound registry and whether the latch is set.
func (b Binding) Registry() (chain.Address, bool) {
	return b.registry, b.bound
}

// IsBound reports whether the latch is set.
func (b Binding) IsBound() bool { return b.bound }

// Bind is the latch transition. Unbound moves to Bound(registry); Bound to
// the same registry stays put; Bound to anything else fails ALREADY_BOUND.
// There is no transition back to Unbound.
func (b Binding) Bind(contract, registry chain.Address) (Binding, error) {
	if registry == chain.ZeroAddress {
		return b, chain.Revert(chain.CodeInvalidInput, contract, "cannot bind to the zero address")
	}
	if !b.bound {
		return Bound(registry), nil
	}
	if b.registry == registry {
		return b, nil
	}
	return b, chain.Revert(chain.CodeAlreadyBound, contract,
		"already bound to %s", b.registry.Hex()).
		WithDetail("bound", b.registry.Hex()).
		WithDetail("requested", registry.Hex())
}

// String renders the binding for display.
func (b Binding) String() string {
	if !b.bound {
		return "unbound"
	}
	return "bound(" + b.registry.Hex() + ")"
}
