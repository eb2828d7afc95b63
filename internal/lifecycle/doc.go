// Package lifecycle drives a stealth payment through the pool program.
//
// The sender creates a DepositRecord at the next free sequence id, uploads the
// hybrid KEM ciphertext in chunks, and completes the deposit, which funds an
// InputEscrow and delegates both accounts to the rollup. The automation agent
// then pools the input and materializes an OutputEscrow keyed by the stealth
// public key. The receiver claims that escrow on the rollup, where the TEE
// checks the stealth hash, and withdraws it on the base ledger.
//
// Every step is submitted, then confirmed with a [confirm.Poller]. A
// confirmation timeout under the optimistic policy is reported through the
// Optimistic flag of the result, never as success without a trace.
package lifecycle
