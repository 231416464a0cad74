package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// Tx is an open write transaction. Reads through a Tx observe its own
// uncommitted writes.
type Tx struct {
	reader
	tx *sql.Tx
}

// Commit makes every write in the transaction durable.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards every write in the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// PutCode installs code at an address. Fails if the address already
// holds code.
func (t *Tx) PutCode(ctx context.Context, rec CodeRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO code (address, code, code_hash, creator, seq)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Address.Bytes(), rec.Code, rec.CodeHash.Bytes(), rec.Creator.Bytes(), rec.Seq)
	if err != nil {
		return fmt.Errorf("put code %s: %w", rec.Address.Hex(), err)
	}
	return nil
}

// PutSlot writes a storage slot, replacing any previous value.
func (t *Tx) PutSlot(ctx context.Context, contract chain.Address, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO slots (contract, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(contract, key) DO UPDATE SET value = excluded.value
	`, contract.Bytes(), key, value)
	if err != nil {
		return fmt.Errorf("put slot %s: %w", key, err)
	}
	return nil
}

// DeleteSlot clears a storage slot. Deleting an absent slot is a no-op.
func (t *Tx) DeleteSlot(ctx context.Context, contract chain.Address, key string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM slots WHERE contract = ? AND key = ?
	`, contract.Bytes(), key)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

// RecordTransaction writes the transaction record.
func (t *Tx) RecordTransaction(ctx context.Context, rec TxRecord) error {
	return recordTransaction(ctx, t.tx, rec)
}

// AppendEvent writes an event. The owning transaction must already be
// recorded.
func (t *Tx) AppendEvent(ctx context.Context, ev EventRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (id, tx_id, seq, log_index, contract, name, args)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.TxID, ev.Seq, ev.LogIndex, ev.Contract.Bytes(), ev.Name, ev.Args)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Name, err)
	}
	return nil
}

// PutName records a system name. Fails if the name is already taken.
func (t *Tx) PutName(ctx context.Context, rec NameRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO names (name, address, seq) VALUES (?, ?, ?)
	`, rec.Name, rec.Address.Bytes(), rec.Seq)
	if err != nil {
		return fmt.Errorf("put name %q: %w", rec.Name, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordTransaction(ctx context.Context, db execer, rec TxRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (id, seq, sender, label, status, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Seq, rec.Sender.Bytes(), rec.Label, rec.Status, rec.Error)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}
