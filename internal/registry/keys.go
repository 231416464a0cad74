package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// Storage layout. Addresses in keys are lowercase hex; indexes are
// zero-padded so a prefix scan returns slots in index order.
const (
	slotAdmin    = "config/admin"
	slotDeployer = "config/deployer"
	slotLimit    = "config/limit"
	slotInitCode = "config/initcode"
)

func keyAddr(a chain.Address) string {
	return hexutil.Encode(a.Bytes())
}

func paymasterKey(id chain.Address) string { return "paymaster/" + keyAddr(id) }

func nextKey(owner chain.Address) string { return "next/" + keyAddr(owner) }

func primaryKey(creator chain.Address) string { return "primary/" + keyAddr(creator) }

func registeredKey(addr chain.Address) string { return "registered/" + keyAddr(addr) }

func slotPrefix(kind string, owner chain.Address) string {
	return kind + "/" + keyAddr(owner) + "/"
}

func slotKey(kind string, owner chain.Address, index uint64) string {
	return fmt.Sprintf("%s%020d", slotPrefix(kind, owner), index)
}
