// Package oracle computes deterministic (CREATE2) deployment addresses.
//
// The address a contract will occupy is
//
//	keccak256(0xff ‖ deployer ‖ salt ‖ keccak256(initCode))[12:]
//
// and is constant for all time for fixed inputs, whether or not the
// deployment has happened. The formula is implemented twice: Predict is the
// ledger-side algebra used by the Deployer contract, PredictClient is the
// client-side formula from go-ethereum used by tooling. Agree checks that
// both produce the same bits.
package oracle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

const (
	// AddressLength is the byte length of a deployer identity.
	AddressLength = common.AddressLength
	// HashLength is the byte length of a salt and of an init code hash.
	HashLength = common.HashLength

	create2Prefix = 0xff
)

// Predict derives the deployment address from the packed CREATE2 preimage.
// Pure and total.
func Predict(deployer chain.Address, salt, initCodeHash chain.Hash) chain.Address {
	preimage := make([]byte, 0, 1+AddressLength+2*HashLength)
	preimage = append(preimage, create2Prefix)
	preimage = append(preimage, deployer[:]...)
	preimage = append(preimage, salt[:]...)
	preimage = append(preimage, initCodeHash[:]...)
	return common.BytesToAddress(crypto.Keccak256(preimage)[12:])
}

// PredictBytes is Predict over raw byte strings, as received from a caller
// that has not yet typed its inputs. Wrong lengths are rejected with
// INVALID_INPUT_LENGTH.
func PredictBytes(deployer, salt, initCodeHash []byte) (chain.Address, error) {
	if len(deployer) != AddressLength {
		return chain.Address{}, lengthError("deployer", AddressLength, len(deployer))
	}
	if len(salt) != HashLength {
		return chain.Address{}, lengthError("salt", HashLength, len(salt))
	}
	if len(initCodeHash) != HashLength {
		return chain.Address{}, lengthError("init code hash", HashLength, len(initCodeHash))
	}
	return Predict(common.BytesToAddress(deployer), common.BytesToHash(salt), common.BytesToHash(initCodeHash)), nil
}

// PredictInitCode hashes initCode and predicts its address.
func PredictInitCode(deployer chain.Address, salt chain.Hash, initCode []byte) chain.Address {
	return Predict(deployer, salt, chain.InitCodeHash(initCode))
}

// PredictClient is the client-side derivation (go-ethereum's CreateAddress2).
func PredictClient(deployer chain.Address, salt chain.Hash, initCodeHash chain.Hash) chain.Address {
	return crypto.CreateAddress2(deployer, salt, initCodeHash[:])
}

// Agree reports whether both derivations produce the same address for the
// given inputs, and returns the ledger-side address.
func Agree(deployer chain.Address, salt, initCodeHash chain.Hash) (chain.Address, bool) {
	ledger := Predict(deployer, salt, initCodeHash)
	return ledger, ledger == PredictClient(deployer, salt, initCodeHash)
}

func lengthError(field string, want, got int) *chain.RevertError {
	return chain.Revert(chain.CodeInvalidInputLength, chain.ZeroAddress,
		"%s must be %d bytes, got %d", field, want, got)
}
