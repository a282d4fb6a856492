package pi

import "cosmossdk.io/errors"

var (
	ErrDAPAttestation  = errors.Register("pi", 1, "DAP attestation failed")
	ErrFollowUp        = errors.Register("pi", 2, "follow-up computation failed")
)
