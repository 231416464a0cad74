package registry

import (
	"log/slog"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
)

// State is where a predicted address stands when a provisioning
// transaction executes.
type State int

const (
	// StateAbsent: no code at the predicted address.
	StateAbsent State = iota
	// StateDeployedUnregistered: code present, registry has no record.
	StateDeployedUnregistered
	// StateRegistered: code present and recorded. Terminal.
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StateDeployedUnregistered:
		return "DEPLOYED_UNREGISTERED"
	case StateRegistered:
		return "REGISTERED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result of a provisioning call.
type Outcome struct {
	// Address is the provisioned contract.
	Address chain.Address
	// Index is the issuance index the address was derived from.
	Index uint64
	// Prior is the state observed before this call acted.
	Prior State
	// Deployed is true when this call created the contract.
	Deployed bool
}

// Mutated reports whether the call changed registry state.
func (o Outcome) Mutated() bool {
	return o.Prior != StateRegistered
}

// Deployer is the slice of the deployer contract a registry drives.
type Deployer interface {
	Address() chain.Address
	Predict(salt chain.Hash, initCode []byte) chain.Address
	Deploy(tx *ledger.Tx, salt chain.Hash, initCode []byte) (chain.Address, error)
}

// reconciler drives one (owner, index) slot from whatever state it is in
// to "code present". Registration is left to the caller so accounts and
// collections can keep their own books.
type reconciler struct {
	registry     chain.Address
	deployer     Deployer
	isRegistered func(chain.Address) (bool, error)
}

func (r reconciler) run(tx *ledger.Tx, owner chain.Address, index uint64, initCode []byte) (Outcome, error) {
	salt := chain.SaltFor(owner, index)
	predicted := r.deployer.Predict(salt, initCode)
	out := Outcome{Address: predicted, Index: index}

	present, err := tx.HasCode(predicted)
	if err != nil {
		return Outcome{}, err
	}
	if present {
		registered, err := r.isRegistered(predicted)
		if err != nil {
			return Outcome{}, err
		}
		if registered {
			out.Prior = StateRegistered
			return out, nil
		}
		out.Prior = StateDeployedUnregistered
		return out, nil
	}

	out.Prior = StateAbsent
	var got chain.Address
	err = tx.Call(r.registry, func(tx *ledger.Tx) error {
		var err error
		got, err = r.deployer.Deploy(tx, salt, initCode)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	if got != predicted {
		slog.Error("address derivation mismatch",
			"registry", r.registry.Hex(),
			"deployer", r.deployer.Address().Hex(),
			"owner", owner.Hex(),
			"index", index,
			"predicted", predicted.Hex(),
			"deployed", got.Hex())
		return Outcome{}, chain.Revert(chain.CodeAddressDerivationMismatch, r.registry,
			"deployed %s, predicted %s", got.Hex(), predicted.Hex()).
			WithDetail("predicted", predicted.Hex()).
			WithDetail("deployed", got.Hex())
	}
	out.Deployed = true
	return out, nil
}
