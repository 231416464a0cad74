package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var saltArguments = func() abi.Arguments {
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uintTy, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addressTy}, {Type: uintTy}}
}()

// SaltFor computes keccak256(abi.encode(creator, index)).
//
// The salt is a pure function of its inputs. It is never stored; every
// caller (off-chain tooling, the registry, tests) recomputes it.
func SaltFor(creator Address, index uint64) Hash {
	packed, err := saltArguments.Pack(creator, new(big.Int).SetUint64(index))
	if err != nil {
		// address and uint256 packing cannot fail for well-typed inputs
		panic(err)
	}
	return crypto.Keccak256Hash(packed)
}

// InitCodeHash returns keccak256(initCode), the only part of the init code
// consumed by address derivation.
func InitCodeHash(initCode []byte) Hash {
	return crypto.Keccak256Hash(initCode)
}
