// Package ledgertest provides an in-memory stealth pool deployment for tests:
// a base ledger and a rollup that execute the pool program's instructions,
// a wallet that signs transactions, a crank that advances delegated deposits,
// and a JSON-RPC server that exposes either domain over HTTP.
package ledgertest
