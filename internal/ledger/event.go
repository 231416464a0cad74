package ledger

import (
	"encoding/json"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/store"
)

// Event is a log entry emitted by a contract during a transaction.
// ID is content-addressed over (seq, log index, contract, name, args).
type Event struct {
	ID       string
	TxID     string
	Seq      int64
	LogIndex int
	Contract chain.Address
	Name     string
	Args     chain.Args

	raw string
}

// RawArgs returns the canonical JSON encoding of Args.
func (e Event) RawArgs() json.RawMessage {
	return json.RawMessage(e.raw)
}

func (e Event) record() store.EventRecord {
	return store.EventRecord{
		ID:       e.ID,
		TxID:     e.TxID,
		Seq:      e.Seq,
		LogIndex: e.LogIndex,
		Contract: e.Contract,
		Name:     e.Name,
		Args:     e.raw,
	}
}
