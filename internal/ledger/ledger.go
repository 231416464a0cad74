// Package ledger is a single-writer, transactional state machine that plays
// the role of the chain for the provisioning contracts.
//
// Every state change happens inside Submit: the transaction body runs
// against a SQLite transaction and either commits in full or rolls back in
// full. Reverted transactions leave no state behind but are still recorded
// with their error, so the transaction log is complete. Transactions are
// serialized; a second Submit blocks until the first has finished, which is
// the ledger's total order.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/store"
)

// Ledger executes transactions against a store.
type Ledger struct {
	mu     sync.Mutex
	store  *store.Store
	clock  SeqSource
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the seq source. Tests use a deterministic clock.
func WithClock(c SeqSource) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithIDGenerator overrides the transaction ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.ids = g }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New creates a ledger over st. Without WithClock the clock resumes after
// the store's last recorded seq.
func New(ctx context.Context, st *store.Store, opts ...Option) (*Ledger, error) {
	if st == nil {
		return nil, errors.New("ledger: nil store")
	}
	l := &Ledger{
		store:  st,
		ids:    UUIDv7Generator{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		last, err := st.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
		l.clock = NewClockAt(last)
	}
	return l, nil
}

// Store returns the backing store.
func (l *Ledger) Store() *store.Store {
	return l.store
}

// Receipt describes the outcome of a submitted transaction.
type Receipt struct {
	TxID   string
	Seq    int64
	Sender chain.Address
	Label  string
	Status string
	Err    error
	Events []Event
}

// Reverted reports whether the transaction was rolled back.
func (r *Receipt) Reverted() bool {
	return r.Status == store.StatusReverted
}

// Submit runs fn as one atomic transaction sent by sender.
//
// If fn returns an error every write is discarded, the transaction is
// recorded as reverted, and the error is returned together with the
// receipt. Infrastructure failures return a nil receipt.
func (l *Ledger) Submit(ctx context.Context, sender chain.Address, label string, fn func(*Tx) error) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	seq := l.clock.Next()
	rec := store.TxRecord{
		ID:     l.ids.Generate(),
		Seq:    seq,
		Sender: sender,
		Label:  label,
	}
	tx := newTx(ctx, stx, seq, sender, false)

	if runErr := fn(tx); runErr != nil {
		if err := stx.Rollback(); err != nil {
			return nil, fmt.Errorf("rollback %s: %w", label, err)
		}
		rec.Status = store.StatusReverted
		rec.Error = runErr.Error()
		if err := l.store.RecordTransaction(ctx, rec); err != nil {
			return nil, err
		}
		l.logger.Warn("transaction reverted",
			"tx", rec.ID, "seq", seq, "label", label, "sender", sender.Hex(),
			"code", string(chain.CodeOf(runErr)), "error", runErr)
		return l.receipt(rec, runErr, nil), runErr
	}

	rec.Status = store.StatusCommitted
	if err := stx.RecordTransaction(ctx, rec); err != nil {
		return nil, abort(stx, label, err)
	}
	for i := range tx.events {
		ev := &tx.events[i]
		ev.TxID = rec.ID
		if err := stx.AppendEvent(ctx, ev.record()); err != nil {
			return nil, abort(stx, label, err)
		}
	}
	if err := stx.Commit(); err != nil {
		return nil, err
	}

	l.logger.Info("transaction committed",
		"tx", rec.ID, "seq", seq, "label", label, "sender", sender.Hex(), "events", len(tx.events))
	return l.receipt(rec, nil, tx.events), nil
}

// abort rolls stx back after a failed write and reports both failures.
func abort(stx *store.Tx, label string, err error) error {
	if rbErr := stx.Rollback(); rbErr != nil {
		return errors.Join(err, fmt.Errorf("rollback %s: %w", label, rbErr))
	}
	return err
}

// View runs fn against a read-only snapshot. Writes inside fn fail.
func (l *Ledger) View(ctx context.Context, fn func(*Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stx, err := l.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer stx.Rollback()

	return fn(newTx(ctx, stx, l.clock.Current(), chain.ZeroAddress, true))
}

// Events returns committed events matching filter in ledger order.
func (l *Ledger) Events(ctx context.Context, filter store.EventFilter) ([]Event, error) {
	recs, err := l.store.ReadEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(recs))
	for _, rec := range recs {
		args, err := chain.UnmarshalArgs(rec.Args)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", rec.ID, err)
		}
		events = append(events, Event{
			ID:       rec.ID,
			TxID:     rec.TxID,
			Seq:      rec.Seq,
			LogIndex: rec.LogIndex,
			Contract: rec.Contract,
			Name:     rec.Name,
			Args:     args,
			raw:      rec.Args,
		})
	}
	return events, nil
}

func (l *Ledger) receipt(rec store.TxRecord, err error, events []Event) *Receipt {
	return &Receipt{
		TxID:   rec.ID,
		Seq:    rec.Seq,
		Sender: rec.Sender,
		Label:  rec.Label,
		Status: rec.Status,
		Err:    err,
		Events: events,
	}
}
