package chain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address is a 20-byte ledger identity: a creator EOA, a deployed contract
// or a facet module.
type Address = common.Address

// Hash is a 32-byte keccak digest (salts, init code hashes).
type Hash = common.Hash

// ZeroAddress means "unset" / "unassigned" everywhere in the core.
var ZeroAddress = common.Address{}

// ParseAddress parses a 0x-prefixed hex identity. Parsing is
// case-insensitive: "0xAB.." and "0xab.." are the same identity.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Address{}, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// CompareAddresses orders identities by their raw bytes.
func CompareAddresses(a, b Address) int {
	return bytes.Compare(a[:], b[:])
}

// Selector is a 4-byte function selector.
type Selector [4]byte

// CutSelector is the selector of
// diamondCut((address,uint8,bytes4[])[],address,bytes), the facet registry's
// own mutation entry point. It can never be the target of a cut.
var CutSelector = Selector{0x1f, 0x93, 0x1c, 0x1c}

// SelectorOf derives the selector of a canonical function signature,
// e.g. "transfer(address,uint256)".
func SelectorOf(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

// ParseSelector parses a 0x-prefixed 4-byte hex selector.
func ParseSelector(s string) (Selector, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Selector{}, fmt.Errorf("invalid selector %q: %w", s, err)
	}
	if len(b) != 4 {
		return Selector{}, fmt.Errorf("invalid selector %q: want 4 bytes, got %d", s, len(b))
	}
	var sel Selector
	copy(sel[:], b)
	return sel, nil
}

// String returns the lowercase 0x-prefixed hex form.
func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// IsZero reports whether the selector is all zero bytes.
func (s Selector) IsZero() bool {
	return s == Selector{}
}

// CompareSelectors orders selectors by their raw bytes.
func CompareSelectors(a, b Selector) int {
	return bytes.Compare(a[:], b[:])
}
