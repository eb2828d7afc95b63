// Package scanner discovers the output escrows that belong to a custody
// identity.
//
// A scan reads every DepositRecord between the cache's last scanned sequence
// id and the pool cursor, extracts the stealth public key and KEM ciphertext
// from each, and hands the batch to the key custody boundary, which returns
// only the owned subset together with their shared secrets. For each owned
// record the scanner decrypts the destination and reads the output escrow.
//
// Lookups are issued in parallel. A failed lookup is treated as a missing
// account and never fails the scan. Ownership mismatches are excluded from the
// result silently.
//
// The [Cache] is owned by the caller and survives across scans. Scans that
// share a cache are serialized.
package scanner
