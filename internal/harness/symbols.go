package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// Alias returns the stable address behind "@name".
func Alias(name string) chain.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("beamio/alias/" + name))[12:])
}

// symbols maps addresses to readable names and back. Hashes get ordinal
// names ("hash#1") in order of first appearance, as do addresses nobody
// named ("addr#1").
type symbols struct {
	byAddr  map[chain.Address]string
	byName  map[string]chain.Address
	hashes  map[chain.Hash]string
	unnamed int
}

func newSymbols() *symbols {
	return &symbols{
		byAddr: make(map[chain.Address]string),
		byName: make(map[string]chain.Address),
		hashes: make(map[chain.Hash]string),
	}
}

// name binds sym to addr. The first name given to an address wins when
// rendering; every name resolves.
func (s *symbols) name(sym string, addr chain.Address) {
	if _, ok := s.byAddr[addr]; !ok {
		s.byAddr[addr] = sym
	}
	s.byName[sym] = addr
}

// resolve turns a symbol, alias or hex string into an address.
func (s *symbols) resolve(ref string) (chain.Address, error) {
	ref = strings.TrimSpace(ref)
	if addr, ok := s.byName[ref]; ok {
		return addr, nil
	}
	switch {
	case strings.HasPrefix(ref, "@") && !strings.Contains(ref, "/"):
		addr := Alias(ref[1:])
		s.name(ref, addr)
		return addr, nil
	case strings.HasPrefix(ref, "$"), strings.HasPrefix(ref, "@"):
		return chain.Address{}, fmt.Errorf("unknown symbol %q", ref)
	}
	return chain.ParseAddress(ref)
}

// render converts a value for the trace: addresses and hashes become
// symbols, maps get their keys visited in sorted order, numbers pass
// through.
func (s *symbols) render(v any) any {
	switch val := v.(type) {
	case chain.Address:
		return s.addr(val)
	case chain.Hash:
		return s.hash(val)
	case chain.Selector:
		return val.String()
	case string:
		if common.IsHexAddress(val) && strings.HasPrefix(val, "0x") {
			return s.addr(common.HexToAddress(val))
		}
		return val
	case []string:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = s.render(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = s.render(e)
		}
		return out
	case chain.Args:
		return s.renderMap(val)
	case map[string]any:
		return s.renderMap(val)
	default:
		return v
	}
}

func (s *symbols) renderMap(m map[string]any) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[k] = s.render(m[k])
	}
	return out
}

func (s *symbols) addr(a chain.Address) string {
	if sym, ok := s.byAddr[a]; ok {
		return sym
	}
	if a == chain.ZeroAddress {
		return "0x0"
	}
	s.unnamed++
	sym := fmt.Sprintf("addr#%d", s.unnamed)
	s.name(sym, a)
	return sym
}

func (s *symbols) hash(h chain.Hash) string {
	if sym, ok := s.hashes[h]; ok {
		return sym
	}
	sym := fmt.Sprintf("hash#%d", len(s.hashes)+1)
	s.hashes[h] = sym
	return sym
}
