// Package probe checks predicted addresses against a live chain over
// JSON-RPC: whether code exists at each address, and whether it is the
// code the ledger expects.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// Target is an address to check, with an optional expected code.
type Target struct {
	Label    string
	Address  chain.Address
	Expected []byte
}

// Result is the chain's answer for one target.
type Result struct {
	Label    string        `json:"label"`
	Address  chain.Address `json:"address"`
	Deployed bool          `json:"deployed"`
	CodeHash chain.Hash    `json:"code_hash"`
	// Matches is nil when no code was expected.
	Matches *bool `json:"matches,omitempty"`
}

// Prober queries a chain node.
type Prober struct {
	client *w3.Client
	logger *slog.Logger
}

// Dial connects to the node at rpcURL.
func Dial(rpcURL string, logger *slog.Logger) (*Prober, error) {
	if rpcURL == "" {
		return nil, errors.New("probe: rpc url is empty")
	}
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Prober{client: client, logger: logger}, nil
}

// Close closes the RPC connection.
func (p *Prober) Close() error {
	return p.client.Close()
}

// ChainID returns the node's chain id.
func (p *Prober) ChainID(ctx context.Context) (uint64, error) {
	var id uint64
	if err := p.client.CallCtx(ctx, eth.ChainID().Returns(&id)); err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	return id, nil
}

// Code returns the code at addr on the latest block.
func (p *Prober) Code(ctx context.Context, addr chain.Address) ([]byte, error) {
	var code []byte
	if err := p.client.CallCtx(ctx, eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, fmt.Errorf("get code %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// Check fetches the code of every target in one batch.
func (p *Prober) Check(ctx context.Context, targets []Target) ([]Result, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	codes := make([][]byte, len(targets))
	calls := make([]w3types.RPCCaller, len(targets))
	for i, t := range targets {
		calls[i] = eth.Code(t.Address, nil).Returns(&codes[i])
	}
	if err := p.client.CallCtx(ctx, calls...); err != nil {
		return nil, fmt.Errorf("get code batch: %w", err)
	}

	results := make([]Result, len(targets))
	for i, t := range targets {
		r := Result{Label: t.Label, Address: t.Address, Deployed: len(codes[i]) > 0}
		if r.Deployed {
			r.CodeHash = chain.InitCodeHash(codes[i])
		}
		if t.Expected != nil {
			ok := bytes.Equal(codes[i], t.Expected)
			r.Matches = &ok
			if r.Deployed && !ok {
				p.logger.Warn("unexpected code at predicted address",
					"label", t.Label, "address", t.Address.Hex(), "code_hash", r.CodeHash.Hex())
			}
		}
		results[i] = r
	}
	return results, nil
}
