package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/ledger"
	"github.com/beamio-APP/BeamioContract/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	TxID     string
	Failed   bool
	Events   bool
	Contract string
	Name     string
	FromSeq  int64
}

// TxView is one recorded transaction.
type TxView struct {
	ID     string        `json:"id"`
	Seq    int64         `json:"seq"`
	Sender chain.Address `json:"sender"`
	Label  string        `json:"label"`
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
	Events []EventView   `json:"events,omitempty"`
}

// EventView is one committed event.
type EventView struct {
	Seq      int64           `json:"seq"`
	LogIndex int             `json:"log_index"`
	Contract chain.Address   `json:"contract"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
}

func (v EventView) String() string {
	return fmt.Sprintf("[%d.%d] %s %s %s", v.Seq, v.LogIndex, v.Contract.Hex(), v.Name, string(v.Args))
}

// TraceStats summarizes the history.
type TraceStats struct {
	Total     int `json:"total"`
	Committed int `json:"committed"`
	Reverted  int `json:"reverted"`
}

// TraceResult is the output of trace without --tx.
type TraceResult struct {
	Transactions []TxView   `json:"transactions"`
	Stats        TraceStats `json:"stats"`
}

func (r TraceResult) String() string {
	if len(r.Transactions) == 0 {
		return "No transactions recorded."
	}
	var b strings.Builder
	for _, tx := range r.Transactions {
		b.WriteString(tx.line())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d transactions: %d committed, %d reverted", r.Stats.Total, r.Stats.Committed, r.Stats.Reverted)
	return b.String()
}

func (v TxView) line() string {
	s := fmt.Sprintf("[%d] %s %s from %s: %s", v.Seq, v.ID, v.Label, v.Sender.Hex(), v.Status)
	if v.Error != "" {
		s += " (" + v.Error + ")"
	}
	return s
}

func (v TxView) String() string {
	var b strings.Builder
	b.WriteString(v.line())
	for _, ev := range v.Events {
		b.WriteString("\n  ")
		b.WriteString(ev.String())
	}
	return b.String()
}

// EventsView is the output of trace --events.
type EventsView struct {
	Events []EventView `json:"events"`
}

func (v EventsView) String() string {
	if len(v.Events) == 0 {
		return "No events found."
	}
	lines := make([]string, len(v.Events))
	for i, ev := range v.Events {
		lines[i] = ev.String()
	}
	return strings.Join(lines, "\n")
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the ledger's transaction history",
		Long: `List recorded transactions in ledger order, reverted ones included with
the error that reverted them.

With --tx, show one transaction and the events it emitted. With --events,
list committed events, optionally filtered by contract and name.

Examples:
  beamio trace
  beamio trace --failed
  beamio trace --tx 0192f3c4-...
  beamio trace --events --name AccountCreated --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TxID, "tx", "", "show one transaction")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only reverted transactions")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "list committed events")
	cmd.Flags().StringVar(&opts.Contract, "contract", "", "filter events by contract")
	cmd.Flags().StringVar(&opts.Name, "name", "", "filter events by name")
	cmd.Flags().Int64Var(&opts.FromSeq, "from-seq", 0, "filter events from this seq")
	cmd.MarkFlagsMutuallyExclusive("tx", "events", "failed")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := opts.formatter(cmd)

	c, err := opts.openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	switch {
	case opts.Events:
		filter := store.EventFilter{Name: opts.Name, FromSeq: opts.FromSeq}
		if opts.Contract != "" {
			if filter.Contract, err = parseAddress("contract", opts.Contract); err != nil {
				return err
			}
		}
		events, err := c.Events(ctx, filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
		return f.Success(EventsView{Events: eventViews(events)})

	case opts.TxID != "":
		txs, err := c.Transactions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transactions", err)
		}
		for _, rec := range txs {
			if rec.ID != opts.TxID {
				continue
			}
			view := txView(rec)
			events, err := c.Events(ctx, store.EventFilter{FromSeq: rec.Seq})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read events", err)
			}
			for _, ev := range eventViews(events) {
				if ev.Seq == rec.Seq {
					view.Events = append(view.Events, ev)
				}
			}
			return f.Success(view)
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("transaction %s not found", opts.TxID))

	default:
		txs, err := c.Transactions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transactions", err)
		}
		result := TraceResult{Transactions: []TxView{}}
		for _, rec := range txs {
			if rec.Status == store.StatusReverted {
				result.Stats.Reverted++
			} else {
				result.Stats.Committed++
			}
			if opts.Failed && rec.Status != store.StatusReverted {
				continue
			}
			result.Transactions = append(result.Transactions, txView(rec))
		}
		result.Stats.Total = len(txs)
		return f.Success(result)
	}
}

func txView(rec store.TxRecord) TxView {
	return TxView{
		ID:     rec.ID,
		Seq:    rec.Seq,
		Sender: rec.Sender,
		Label:  rec.Label,
		Status: rec.Status,
		Error:  rec.Error,
	}
}

func eventViews(events []ledger.Event) []EventView {
	out := make([]EventView, len(events))
	for i, ev := range events {
		out[i] = EventView{
			Seq:      ev.Seq,
			LogIndex: ev.LogIndex,
			Contract: ev.Contract,
			Name:     ev.Name,
			Args:     ev.RawArgs(),
		}
	}
	return out
}
