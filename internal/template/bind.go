package template

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// placeholderName reports whether s is a `$name` leaf and, if so, the bare
// name after the sigil. A bare "$" or a value that merely starts with "$"
// as part of a longer Mongo operator/field path (e.g. "$$NOW", "$_id") is
// only ever a placeholder when the remainder exactly matches a
// caller-parameter name — operator keys are never leaf *values* touched by
// this walk in the first place, and no validator name contains a dot or a
// second leading "$", so real aggregation expressions never collide.
func placeholderName(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	name := s[1:]
	if _, ok := Validators[name]; !ok {
		return "", false
	}
	return name, true
}

// Bind walks template (a bson.D/bson.A/bson.M tree as produced by
// internal/pipeline) and replaces every `$name` leaf with
// Validate(name, params[name]). Structural shape — nesting, arrays, keys —
// is preserved exactly (spec.md §4.4); no string other than a recognized
// placeholder leaf is modified.
func Bind(tmpl any, params map[string]any) (any, error) {
	switch t := tmpl.(type) {
	case bson.D:
		out := make(bson.D, len(t))
		for i, elem := range t {
			bound, err := Bind(elem.Value, params)
			if err != nil {
				return nil, err
			}
			out[i] = bson.E{Key: elem.Key, Value: bound}
		}
		return out, nil

	case bson.M:
		out := make(bson.M, len(t))
		for k, v := range t {
			bound, err := Bind(v, params)
			if err != nil {
				return nil, err
			}
			out[k] = bound
		}
		return out, nil

	case bson.A:
		out := make(bson.A, len(t))
		for i, v := range t {
			bound, err := Bind(v, params)
			if err != nil {
				return nil, err
			}
			out[i] = bound
		}
		return out, nil

	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			bound, err := Bind(v, params)
			if err != nil {
				return nil, err
			}
			out[i] = bound
		}
		return out, nil

	case string:
		name, ok := placeholderName(t)
		if !ok {
			return t, nil
		}
		raw, present := params[name]
		if !present {
			return nil, ErrMissingParameter.Wrapf("template references %q", name)
		}
		return Validate(name, raw)

	default:
		// Scalars (numbers, bools, nil, already-typed values such as a
		// bson.ObjectID embedded directly by the registry) pass through
		// unchanged.
		return t, nil
	}
}

// CheckNoResidualPlaceholders walks a bound query and fails if any `$name`
// string leaf (matching a known parameter name) survived binding — spec.md
// §4.2 step 5: "Any unknown placeholder left in-situ after walk is a
// failure." In practice Bind never leaves a resolved placeholder behind
// (it always substitutes or errors), so this is a defense-in-depth
// assertion exercised by tests rather than a code path the happy path
// relies on.
func CheckNoResidualPlaceholders(bound any) error {
	switch t := bound.(type) {
	case bson.D:
		for _, elem := range t {
			if err := CheckNoResidualPlaceholders(elem.Value); err != nil {
				return err
			}
		}
	case bson.M:
		for _, v := range t {
			if err := CheckNoResidualPlaceholders(v); err != nil {
				return err
			}
		}
	case bson.A:
		for _, v := range t {
			if err := CheckNoResidualPlaceholders(v); err != nil {
				return err
			}
		}
	case []any:
		for _, v := range t {
			if err := CheckNoResidualPlaceholders(v); err != nil {
				return err
			}
		}
	case string:
		if _, ok := placeholderName(t); ok {
			return ErrUnresolvedPlaceholder.Wrapf("leaf %q", t)
		}
	}
	return nil
}

// RejectReservedParams enforces spec.md §3's invariant that a caller may
// never supply "attestation" directly, and that every supplied name is in
// the closed validator set. Called on the raw inbound params map before any
// DAP-internal field (like attestation) is added.
func RejectReservedParams(params map[string]any) error {
	if _, present := params["attestation"]; present {
		return ErrAttestationReserved
	}
	for name := range params {
		if _, ok := Validators[name]; !ok {
			return ErrUnknownParameter.Wrapf("parameter %q", name)
		}
	}
	return nil
}

// WithAttestation returns a shallow copy of params with "attestation" set,
// for the DAP's internal rebind (spec.md §4.2 steps 4 and 7). The caller's
// own map is never mutated in place so a failed rebind cannot leave stale
// state visible to a concurrent reader of the original params.
func WithAttestation(params map[string]any, attested bool) map[string]any {
	out := make(map[string]any, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["attestation"] = attested
	return out
}
