package signing

import "cosmossdk.io/errors"

// Error codes for the signing package, registered the way
// pkg/verification/*/errors.go register theirs in the teacher repo.
var (
	ErrKeyGenerationFailed = errors.Register("signing", 1, "key generation failed")
	ErrInvalidPublicKey    = errors.Register("signing", 2, "invalid public key")
	ErrInvalidSignature    = errors.Register("signing", 3, "signature verification failed")
	ErrUnknownSigner       = errors.Register("signing", 4, "unknown signer identity")
	ErrKeyLoadFailed       = errors.Register("signing", 5, "failed to load signing key material")
)
