// Package rpc implements ledger.Client over the JSON-RPC 2.0 HTTP interface
// exposed by both the base ledger and the TEE rollup.
//
// # Retry Behavior
//
// Transport failures and these HTTP statuses are retried with exponential
// backoff and jitter, up to [RetryConfig.MaxRetries] times, waiting longer
// when the node sends a Retry-After hint:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500 Internal Server Error
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// A JSON-RPC error object is retried only when its code means throttling:
// 429 (rate limited) or -32005 (node behind). Its code decides even when
// the HTTP status alone would be retried.
// Every attempt first waits on the client's rate limiter, if one is set.
//
// # Error Handling
//
// Failed transactions are decoded into *apierrors.LedgerRejectedError, both
// when preflight simulation rejects a submission and when a landed
// transaction reports an error in its signature status:
//
//	if errors.Is(err, apierrors.ErrAlreadyWithdrawn) {
//	    // terminal for this escrow
//	}
//
// Other JSON-RPC error objects surface as *apierrors.RPCError, non-2xx
// responses as *apierrors.HTTPError and transport failures as
// *apierrors.NetworkError.
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use.
package rpc
