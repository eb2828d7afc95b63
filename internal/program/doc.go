// Package program describes the on-ledger stealth pool program as seen by the
// client: bit-exact account layouts, Anchor-style discriminators, program
// derived addresses, instruction builders and ciphertext chunking.
//
// # Account layouts
//
// Every account begins with an 8-byte discriminator equal to the first eight
// bytes of SHA-256("account:<Name>"). Integers are little-endian and fields sit
// at fixed offsets:
//
//	DepositRecord (1293 bytes)
//	  0..8      discriminator
//	  8..16     sequence id (u64)
//	  16..48    depositor
//	  48..56    amount (u64)
//	  56..88    stealth public key
//	  88..120   ephemeral public key
//	  120       view tag
//	  121..169  encrypted destination
//	  169..1289 hybrid KEM ciphertext
//	  1289      uploaded flag
//	  1290      executed flag
//	  1291      claimed flag
//	  1292      bump
//
//	InputEscrow (26 bytes)
//	  8..16 sequence id, 16..24 amount, 24 pooled flag, 25 bump
//
//	OutputEscrow (83 bytes)
//	  8..40 stealth public key, 40..48 amount, 48..80 verified destination,
//	  80 verified flag, 81 withdrawn flag, 82 bump
//
//	Pool (57 bytes)
//	  8..40 authority, 40..48 last deposit id, 48..56 total deposits, 56 bump
//
// Changing an offset breaks interoperability silently, so the tests in this
// package pin each one.
package program
