package dap

import "cosmossdk.io/errors"

var (
	ErrUnknownRoute     = errors.Register("dap", 1, "route not in permitted whitelist")
	ErrPeerAttestation  = errors.Register("dap", 2, "peer attestation failed")
	ErrAuth             = errors.Register("dap", 3, "authentication failed")
	ErrCallerAttestation = errors.Register("dap", 4, "caller attestation failed")
)
