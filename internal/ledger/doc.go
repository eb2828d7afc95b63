// Package ledger defines the collaborator interfaces the client consumes from a
// ledger node and a wallet, together with wire-neutral value types for accounts,
// instructions and signature statuses.
//
// The same Client interface serves both settlement domains: the durable base
// ledger and the delegated TEE rollup. Delegated accounts are authoritative on
// the rollup and stale on the base ledger.
package ledger
