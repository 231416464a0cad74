package store

import "github.com/beamio-APP/BeamioContract/internal/chain"

// Transaction statuses.
const (
	StatusCommitted = "committed"
	StatusReverted  = "reverted"
)

// CodeRecord is the code installed at an address.
type CodeRecord struct {
	Address  chain.Address
	Code     []byte
	CodeHash chain.Hash
	Creator  chain.Address
	Seq      int64
}

// Slot is one key/value entry of a contract's storage.
type Slot struct {
	Key   string
	Value []byte
}

// TxRecord is a ledger transaction, committed or reverted.
type TxRecord struct {
	ID     string
	Seq    int64
	Sender chain.Address
	Label  string
	Status string
	Error  string
}

// EventRecord is an event emitted by a committed transaction.
// Args holds canonical JSON.
type EventRecord struct {
	ID       string
	TxID     string
	Seq      int64
	LogIndex int
	Contract chain.Address
	Name     string
	Args     string
}

// EventFilter narrows ReadEvents. Zero fields match everything.
type EventFilter struct {
	Contract chain.Address
	Name     string
	FromSeq  int64
}

// NameRecord maps a system name to a contract address.
type NameRecord struct {
	Name    string
	Address chain.Address
	Seq     int64
}
