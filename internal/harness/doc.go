// Package harness runs provisioning scenarios against a fresh in-memory
// ledger and checks their traces.
//
// A scenario bootstraps a system, runs setup and flow steps as
// transactions, and evaluates assertions on the trace and on final state.
// Identities are written symbolically: "@alice" is a stable test address,
// "$registry" names a bootstrapped contract, and provisioned accounts
// appear as "@alice/account/0". Traces render every address and hash
// through the same symbol table, so golden files stay readable and can be
// written by hand.
//
// Golden traces live under testdata/golden. Regenerate them with
//
//	go test ./internal/harness -update
package harness
