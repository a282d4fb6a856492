package verifier

import "cosmossdk.io/errors"

// Rejected is returned for every failure path in RequestAttestation. Per
// spec.md §4.1 "Failure": the Verifier does not reveal which step failed,
// so every internal cause collapses to this single sentinel before it
// reaches a peer. Callers that need the internal cause for logging should
// inspect the wrapped error locally, never forward it on the wire.
var Rejected = errors.Register("verifier", 1, "attestation rejected")
