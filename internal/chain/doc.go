// Package chain provides the foundational ledger types for the provisioning core.
//
// This package contains identities, selectors, salts, the revert taxonomy and
// the canonical JSON used for content-addressed ledger records. All other
// internal packages import chain; chain imports nothing internal.
//
// Key design constraints:
//   - Identities are byte-exact for logic and checksummed hex for display
//   - Salts are pure functions of (creator, index) and are never stored
//   - NO float types in event arguments - use int64/uint64 for numbers
//   - Logical sequence numbers only, never wall-clock timestamps
package chain
