package dap

import (
	stderrors "errors"

	"github.com/virtengine/vericare/internal/template"
)

const identityPI = "pi"

// errorsIsParameter reports whether err originates from the template
// package's validation/binding failures, which map to spec.md §7's
// ParameterError and must be reported before any store call is blamed.
func errorsIsParameter(err error) bool {
	for _, sentinel := range []error{
		template.ErrUnknownParameter,
		template.ErrMissingParameter,
		template.ErrInvalidParameter,
		template.ErrAttestationReserved,
		template.ErrUnresolvedPlaceholder,
	} {
		if stderrors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
