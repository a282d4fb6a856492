// Package template implements the binding engine of spec.md §4.4: given an
// approved pipeline template and a caller's parameters, it produces an
// executable query where every `$name` leaf has been replaced by a
// validated, coerced value. No reflection is needed — the validator set is
// closed (spec.md §9).
package template

import "cosmossdk.io/errors"

var (
	// ErrUnknownParameter is returned for a caller-supplied parameter whose
	// name is not recognized (RejectReservedParams) and by Validate for a
	// name outside the closed validator set. Bind never returns it: a
	// `$`-prefixed leaf whose name is not in the validator set is not
	// treated as a placeholder and is left unchanged.
	ErrUnknownParameter = errors.Register("template", 1, "unknown parameter name")

	// ErrMissingParameter is returned when a template references a
	// parameter the caller did not supply.
	ErrMissingParameter = errors.Register("template", 2, "missing parameter value")

	// ErrInvalidParameter is returned when a supplied value fails
	// validation or coercion for its parameter's type.
	ErrInvalidParameter = errors.Register("template", 3, "parameter failed validation")

	// ErrAttestationReserved is returned when a caller-supplied parameter
	// set includes "attestation" directly — spec.md §3 invariant: "The
	// attestation parameter supplied to a template is set by the DAP,
	// never by the caller: callers who pass it are rejected."
	ErrAttestationReserved = errors.Register("template", 4, "attestation parameter may not be supplied by the caller")

	// ErrUnresolvedPlaceholder means a `$`-leaf survived the bind walk
	// unresolved — a bug in the template or the validator set, not caller
	// input (spec.md §4.4 "no string other than leaves starting with $ is
	// modified", and any `$name` left in-situ after the walk is a
	// failure).
	ErrUnresolvedPlaceholder = errors.Register("template", 5, "unresolved placeholder left in bound query")
)
