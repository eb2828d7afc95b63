// Package watch runs a check function on an adaptive schedule.
//
// A [Poller] calls its function, then waits. When the function reports a
// change the interval resets to its initial value; otherwise it grows by the
// backoff multiplier up to the maximum. Random jitter is added to every wait
// so that many clients polling the same RPC node do not synchronize.
//
// The escrow monitor uses a Poller to run periodic scans, and [Until] backs
// blocking waits such as waiting for an escrow to appear.
package watch
