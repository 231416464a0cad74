// Package store provides SQLite-backed durable storage for the ledger.
//
// The store holds four tables:
//   - code: contract code by address, written once per address
//   - slots: per-contract key/value storage
//   - transactions: every submitted transaction, committed or reverted
//   - events: events emitted by committed transactions
//
// All ordering uses seq INTEGER (the ledger's logical clock), never
// timestamps. Queries that return lists order by seq, then a stable
// tiebreaker, so replays read identical results.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
