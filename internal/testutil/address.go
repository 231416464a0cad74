package testutil

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address derives a stable test address from a label.
//
//	testutil.Address("alice") // same value on every run
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("beamio/test/" + label))[12:])
}
