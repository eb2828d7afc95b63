// Package custody implements the key custody boundary: a single goroutine that
// is the only holder of the spend, view and KEM secret keys.
//
// Callers never touch key material. They exchange typed request and response
// messages with the custody goroutine; each request carries a correlation id
// and a router goroutine hands every response to the caller waiting on that
// id. Several requests may be outstanding at once.
//
// Requests that do not complete within the boundary's timeout fail with
// apierrors.ErrCustodyTimeout. If the custody goroutine panics, its secrets are
// wiped, every pending request is rejected with apierrors.ErrCustodyCrashed and
// the pending table is cleared; later requests fail the same way until a new
// Boundary is created.
package custody
