package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reader holds the read queries shared by Store and Tx.
type reader struct {
	q querier
}

// ReadCode returns the code at an address and whether any is installed.
func (r reader) ReadCode(ctx context.Context, addr chain.Address) (CodeRecord, bool, error) {
	var code, codeHash, creator []byte
	rec := CodeRecord{Address: addr}
	err := r.q.QueryRowContext(ctx, `
		SELECT code, code_hash, creator, seq FROM code WHERE address = ?
	`, addr.Bytes()).Scan(&code, &codeHash, &creator, &rec.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return CodeRecord{}, false, nil
	}
	if err != nil {
		return CodeRecord{}, false, fmt.Errorf("read code %s: %w", addr.Hex(), err)
	}
	rec.Code = code
	rec.CodeHash = common.BytesToHash(codeHash)
	rec.Creator = common.BytesToAddress(creator)
	return rec, true, nil
}

// ReadSlot returns a storage slot value and whether it is set.
func (r reader) ReadSlot(ctx context.Context, contract chain.Address, key string) ([]byte, bool, error) {
	var value []byte
	err := r.q.QueryRowContext(ctx, `
		SELECT value FROM slots WHERE contract = ? AND key = ?
	`, contract.Bytes(), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return value, true, nil
}

// ReadSlots returns every slot of contract whose key starts with prefix,
// ordered by key (binary collation).
func (r reader) ReadSlots(ctx context.Context, contract chain.Address, prefix string) ([]Slot, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT key, value FROM slots
		WHERE contract = ? AND substr(key, 1, ?) = ?
		ORDER BY key COLLATE BINARY ASC
	`, contract.Bytes(), len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}

// ReadName resolves a system name.
func (r reader) ReadName(ctx context.Context, name string) (chain.Address, bool, error) {
	var addr []byte
	err := r.q.QueryRowContext(ctx, `SELECT address FROM names WHERE name = ?`, name).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return chain.Address{}, false, nil
	}
	if err != nil {
		return chain.Address{}, false, fmt.Errorf("read name %q: %w", name, err)
	}
	return common.BytesToAddress(addr), true, nil
}

// ReadNames returns every system name ordered by name.
func (r reader) ReadNames(ctx context.Context) ([]NameRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT name, address, seq FROM names ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	var names []NameRecord
	for rows.Next() {
		var rec NameRecord
		var addr []byte
		if err := rows.Scan(&rec.Name, &addr, &rec.Seq); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		rec.Address = common.BytesToAddress(addr)
		names = append(names, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

// LastSeq returns the highest transaction seq, or 0 for an empty ledger.
func (r reader) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.q.QueryRowContext(ctx, `SELECT MAX(seq) FROM transactions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadTransactions returns every transaction ordered by seq.
func (r reader) ReadTransactions(ctx context.Context) ([]TxRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, seq, sender, label, status, error
		FROM transactions
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []TxRecord
	for rows.Next() {
		var rec TxRecord
		var sender []byte
		if err := rows.Scan(&rec.ID, &rec.Seq, &sender, &rec.Label, &rec.Status, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Sender = common.BytesToAddress(sender)
		txs = append(txs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// ReadEvents returns events matching filter ordered by (seq, log_index).
func (r reader) ReadEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Contract != (chain.Address{}) {
		where = append(where, "contract = ?")
		args = append(args, filter.Contract.Bytes())
	}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.FromSeq > 0 {
		where = append(where, "seq >= ?")
		args = append(args, filter.FromSeq)
	}

	query := `SELECT id, tx_id, seq, log_index, contract, name, args FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC, log_index ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var ev EventRecord
		var contract []byte
		if err := rows.Scan(&ev.ID, &ev.TxID, &ev.Seq, &ev.LogIndex, &contract, &ev.Name, &ev.Args); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Contract = common.BytesToAddress(contract)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
