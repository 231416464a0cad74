package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/beamio-APP/BeamioContract/internal/chain"
	"github.com/beamio-APP/BeamioContract/internal/store"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("ledger: write in read-only transaction")

const nonceKey = "ledger/nonce"

// EventContractCreated is emitted by the ledger for every code install.
const EventContractCreated = "ContractCreated"

// Tx is the execution context of one transaction. Contracts read and write
// their storage through it, deploy code through it, and emit events on it.
//
// Sender is the immediate caller of the executing frame. It starts as the
// transaction's origin and changes only inside Call.
type Tx struct {
	ctx      context.Context
	st       *store.Tx
	seq      int64
	origin   chain.Address
	sender   chain.Address
	readOnly bool
	events   []Event
}

func newTx(ctx context.Context, st *store.Tx, seq int64, origin chain.Address, readOnly bool) *Tx {
	return &Tx{ctx: ctx, st: st, seq: seq, origin: origin, sender: origin, readOnly: readOnly}
}

// Context returns the transaction's context.
func (t *Tx) Context() context.Context { return t.ctx }

// Seq returns the transaction's logical timestamp.
func (t *Tx) Seq() int64 { return t.seq }

// Origin returns the account that submitted the transaction.
func (t *Tx) Origin() chain.Address { return t.origin }

// Sender returns the immediate caller of the executing frame.
func (t *Tx) Sender() chain.Address { return t.sender }

// Call runs fn as a call made by contract from: inside fn, Sender is from.
func (t *Tx) Call(from chain.Address, fn func(*Tx) error) error {
	prev := t.sender
	t.sender = from
	defer func() { t.sender = prev }()
	return fn(t)
}

// Load reads a storage slot of contract.
func (t *Tx) Load(contract chain.Address, key string) ([]byte, bool, error) {
	return t.st.ReadSlot(t.ctx, contract, key)
}

// Scan reads every slot of contract under prefix, ordered by key.
func (t *Tx) Scan(contract chain.Address, prefix string) ([]store.Slot, error) {
	return t.st.ReadSlots(t.ctx, contract, prefix)
}

// Store writes a storage slot of contract.
func (t *Tx) Store(contract chain.Address, key string, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.st.PutSlot(t.ctx, contract, key, value)
}

// Delete clears a storage slot of contract.
func (t *Tx) Delete(contract chain.Address, key string) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.st.DeleteSlot(t.ctx, contract, key)
}

// CodeAt returns the code installed at addr, or nil if there is none.
func (t *Tx) CodeAt(addr chain.Address) ([]byte, error) {
	rec, ok, err := t.st.ReadCode(t.ctx, addr)
	if err != nil || !ok {
		return nil, err
	}
	return rec.Code, nil
}

// HasCode reports whether addr holds code.
func (t *Tx) HasCode(addr chain.Address) (bool, error) {
	_, ok, err := t.st.ReadCode(t.ctx, addr)
	return ok, err
}

// ExpectCode fails with NOT_FOUND unless addr holds exactly code. Contracts
// use it to check that an address is an instance of their kind.
func (t *Tx) ExpectCode(addr chain.Address, code []byte, kind string) error {
	got, err := t.CodeAt(addr)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, code) {
		return chain.Revert(chain.CodeNotFound, addr, "no %s at %s", kind, addr.Hex())
	}
	return nil
}

// Name records addr under a well-known system name. A name is assigned
// once.
func (t *Tx) Name(name string, addr chain.Address) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.st.PutName(t.ctx, store.NameRecord{Name: name, Address: addr, Seq: t.seq})
}

// Lookup resolves a system name. Unknown names fail with NOT_FOUND.
func (t *Tx) Lookup(name string) (chain.Address, error) {
	addr, ok, err := t.st.ReadName(t.ctx, name)
	if err != nil {
		return chain.Address{}, err
	}
	if !ok {
		return chain.Address{}, chain.Revert(chain.CodeNotFound, chain.ZeroAddress, "no contract named %q", name)
	}
	return addr, nil
}

// Names returns every recorded system name.
func (t *Tx) Names() ([]store.NameRecord, error) {
	return t.st.ReadNames(t.ctx)
}

// Create2 installs initCode at the deterministic address derived from
// (deployer, salt, keccak256(initCode)) and returns that address. Occupied
// targets fail with DEPLOYMENT_COLLISION. The installed code is initCode
// itself; the ledger does not execute constructors.
func (t *Tx) Create2(deployer chain.Address, salt chain.Hash, initCode []byte) (chain.Address, error) {
	codeHash := chain.InitCodeHash(initCode)
	addr := crypto.CreateAddress2(deployer, salt, codeHash[:])
	if err := t.install(addr, deployer, initCode, codeHash); err != nil {
		return chain.Address{}, err
	}
	return addr, nil
}

// Create installs initCode at the nonce-derived address of the transaction
// origin. Used to stand up singleton contracts whose addresses need not be
// predictable.
func (t *Tx) Create(initCode []byte) (chain.Address, error) {
	if t.readOnly {
		return chain.Address{}, ErrReadOnly
	}
	nonce, err := t.LoadUint(t.origin, nonceKey)
	if err != nil {
		return chain.Address{}, err
	}
	addr := crypto.CreateAddress(t.origin, nonce)
	if err := t.install(addr, t.origin, initCode, chain.InitCodeHash(initCode)); err != nil {
		return chain.Address{}, err
	}
	if err := t.StoreUint(t.origin, nonceKey, nonce+1); err != nil {
		return chain.Address{}, err
	}
	return addr, nil
}

func (t *Tx) install(addr, creator chain.Address, code []byte, codeHash chain.Hash) error {
	if t.readOnly {
		return ErrReadOnly
	}
	occupied, err := t.HasCode(addr)
	if err != nil {
		return err
	}
	if occupied {
		return chain.Revert(chain.CodeDeploymentCollision, creator,
			"address %s already holds code", addr.Hex()).
			WithDetail("address", addr.Hex())
	}
	if err := t.st.PutCode(t.ctx, store.CodeRecord{
		Address:  addr,
		Code:     code,
		CodeHash: codeHash,
		Creator:  creator,
		Seq:      t.seq,
	}); err != nil {
		return err
	}
	return t.Emit(addr, EventContractCreated, chain.Args{"creator": creator, "codeHash": codeHash})
}

// Emit appends an event to the transaction. Events become visible only if
// the transaction commits.
func (t *Tx) Emit(contract chain.Address, name string, args chain.Args) error {
	if t.readOnly {
		return ErrReadOnly
	}
	logIndex := len(t.events)
	id, err := chain.EventID(t.seq, logIndex, contract, name, args)
	if err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	raw, err := chain.MarshalCanonical(args)
	if err != nil {
		return fmt.Errorf("emit %s: %w", name, err)
	}
	t.events = append(t.events, Event{
		ID:       id,
		Seq:      t.seq,
		LogIndex: logIndex,
		Contract: contract,
		Name:     name,
		Args:     args,
		raw:      string(raw),
	})
	return nil
}

// Typed slot helpers. Addresses are stored as 20 raw bytes, integers as
// 8 big-endian bytes and booleans as a single 0x01 byte (absent is false).

// LoadAddress reads an address slot. Absent slots read as the zero address.
func (t *Tx) LoadAddress(contract chain.Address, key string) (chain.Address, error) {
	v, ok, err := t.Load(contract, key)
	if err != nil || !ok {
		return chain.Address{}, err
	}
	return common.BytesToAddress(v), nil
}

// StoreAddress writes an address slot.
func (t *Tx) StoreAddress(contract chain.Address, key string, addr chain.Address) error {
	return t.Store(contract, key, addr.Bytes())
}

// LoadUint reads an integer slot. Absent slots read as 0.
func (t *Tx) LoadUint(contract chain.Address, key string) (uint64, error) {
	v, ok, err := t.Load(contract, key)
	if err != nil || !ok {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("slot %s: want 8 bytes, got %d", key, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// StoreUint writes an integer slot.
func (t *Tx) StoreUint(contract chain.Address, key string, n uint64) error {
	return t.Store(contract, key, binary.BigEndian.AppendUint64(nil, n))
}

// LoadBool reads a flag slot.
func (t *Tx) LoadBool(contract chain.Address, key string) (bool, error) {
	v, ok, err := t.Load(contract, key)
	if err != nil || !ok {
		return false, err
	}
	return len(v) == 1 && v[0] == 1, nil
}

// StoreBool writes a flag slot. Clearing a flag deletes the slot.
func (t *Tx) StoreBool(contract chain.Address, key string, b bool) error {
	if !b {
		return t.Delete(contract, key)
	}
	return t.Store(contract, key, []byte{1})
}
