package registry

import (
	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
)

// Event names shared by every registry contract.
const (
	EventAuthorizedCallerChanged = "AuthorizedCallerChanged"
	EventAdminTransferred        = "AdminTransferred"
)

// access is the admin + authorized-caller (paymaster) role set of a
// registry contract. Its methods are promoted onto Registry and Collections.
type access struct {
	addr chain.Address
}

// Address returns the contract's address.
func (a access) Address() chain.Address { return a.addr }

// Admin returns the account allowed to manage roles and limits.
func (a access) Admin(tx *ledger.Tx) (chain.Address, error) {
	return tx.LoadAddress(a.addr, slotAdmin)
}

// IsAuthorizedCaller reports whether id may provision on behalf of others.
// The admin is always authorized.
func (a access) IsAuthorizedCaller(tx *ledger.Tx, id chain.Address) (bool, error) {
	admin, err := a.Admin(tx)
	if err != nil {
		return false, err
	}
	if id == admin {
		return true, nil
	}
	return tx.LoadBool(a.addr, paymasterKey(id))
}

// SetAuthorizedCaller grants or revokes the authorized-caller role.
// Admin-gated. Setting the current value again is a no-op.
func (a access) SetAuthorizedCaller(tx *ledger.Tx, id chain.Address, enabled bool) error {
	if err := a.requireAdmin(tx); err != nil {
		return err
	}
	if id == chain.ZeroAddress {
		return chain.Revert(chain.CodeInvalidInput, a.addr, "authorized caller is the zero address")
	}
	current, err := tx.LoadBool(a.addr, paymasterKey(id))
	if err != nil {
		return err
	}
	if current == enabled {
		return nil
	}
	if err := tx.StoreBool(a.addr, paymasterKey(id), enabled); err != nil {
		return err
	}
	return tx.Emit(a.addr, EventAuthorizedCallerChanged, chain.Args{"caller": id, "enabled": enabled})
}

// TransferAdmin hands the admin role to next. Admin-gated.
func (a access) TransferAdmin(tx *ledger.Tx, next chain.Address) error {
	if err := a.requireAdmin(tx); err != nil {
		return err
	}
	if next == chain.ZeroAddress {
		return chain.Revert(chain.CodeInvalidInput, a.addr, "new admin is the zero address")
	}
	prev, err := a.Admin(tx)
	if err != nil {
		return err
	}
	if prev == next {
		return nil
	}
	if err := tx.StoreAddress(a.addr, slotAdmin, next); err != nil {
		return err
	}
	return tx.Emit(a.addr, EventAdminTransferred, chain.Args{"previous": prev, "admin": next})
}

func (a access) requireAdmin(tx *ledger.Tx) error {
	admin, err := a.Admin(tx)
	if err != nil {
		return err
	}
	if tx.Sender() != admin {
		return chain.Revert(chain.CodeNotAuthorized, a.addr, "caller is not the admin").
			WithDetail("caller", tx.Sender().Hex())
	}
	return nil
}

func (a access) requireAuthorized(tx *ledger.Tx) error {
	ok, err := a.IsAuthorizedCaller(tx, tx.Sender())
	if err != nil {
		return err
	}
	if !ok {
		return chain.Revert(chain.CodeNotAuthorized, a.addr, "caller is not an authorized caller").
			WithDetail("caller", tx.Sender().Hex())
	}
	return nil
}
