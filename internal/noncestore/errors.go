// Package noncestore implements the Verifier's pending-nonce map: the only
// shared mutable state in the protocol (spec.md §5), guarded for atomic
// insert/lookup/retire. Adapted from pkg/verification/nonce/memory.go in the
// teacher repo, trimmed to the single-use, 300s-expiry policy spec.md §3
// and §9(a) settle on, and re-themed from "attestation replay protection for
// a chain" to "Verifier nonce issuance for a gateway".
package noncestore

import "cosmossdk.io/errors"

var (
	ErrNotFound    = errors.Register("noncestore", 1, "nonce not found")
	ErrAlreadyUsed = errors.Register("noncestore", 2, "nonce already used")
	ErrExpired     = errors.Register("noncestore", 3, "nonce expired")
	ErrClosed      = errors.Register("noncestore", 4, "nonce store is closed")
)
