package template

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Validator coerces and validates a raw caller-supplied value for one
// parameter name, returning the value to splice into the bound query.
// Validators are typed, total, and language-neutral (spec.md §4.4):
// implementations coerce where safe (e.g. a hex string to an object id) but
// must reject, never best-effort guess, on any failure to coerce.
type Validator func(raw any) (any, error)

// objectIDParam validates patient_id / user_id / access_control_id /
// target_user_id: "must be or be coercible to a 12-byte object identifier"
// (spec.md §3).
func objectIDParam(raw any) (any, error) {
	switch v := raw.(type) {
	case bson.ObjectID:
		return v, nil
	case string:
		oid, err := bson.ObjectIDFromHex(v)
		if err != nil {
			return nil, ErrInvalidParameter.Wrapf("not a valid object id: %v", err)
		}
		return oid, nil
	case []byte:
		if len(v) != 12 {
			return nil, ErrInvalidParameter.Wrapf("object id must be 12 bytes, got %d", len(v))
		}
		var oid bson.ObjectID
		copy(oid[:], v)
		return oid, nil
	default:
		return nil, ErrInvalidParameter.Wrapf("cannot coerce %T to an object id", raw)
	}
}

// nonEmptyStringParam validates access_control_path: "non-empty string".
func nonEmptyStringParam(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, ErrInvalidParameter.Wrapf("expected string, got %T", raw)
	}
	if s == "" {
		return nil, ErrInvalidParameter.Wrap("must be non-empty")
	}
	return s, nil
}

// accessTypeSets enumerates the only permission sets access_type may name
// (spec.md §3).
var accessTypeSets = [][]string{
	{"write"},
	{"read", "write"},
	{"read"},
}

// accessTypeParam validates access_type: "one of the sets {write},
// {read,write}, {read}".
func accessTypeParam(raw any) (any, error) {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = append(items, v...)
	case []any:
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, ErrInvalidParameter.Wrapf("access_type elements must be strings, got %T", e)
			}
			items = append(items, s)
		}
	case string:
		items = []string{v}
	default:
		return nil, ErrInvalidParameter.Wrapf("cannot coerce %T to an access type set", raw)
	}

	sorted := append([]string(nil), items...)
	sort.Strings(sorted)

	for _, candidate := range accessTypeSets {
		sc := append([]string(nil), candidate...)
		sort.Strings(sc)
		if equalStrings(sorted, sc) {
			out := make(bson.A, len(candidate))
			for i, s := range candidate {
				out[i] = s
			}
			return out, nil
		}
	}
	return nil, ErrInvalidParameter.Wrapf("access_type must be one of %v", accessTypeSets)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// finiteRealParam validates height_input / input_bp: "finite real number".
func finiteRealParam(raw any) (any, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return nil, ErrInvalidParameter.Wrapf("cannot coerce %T to a real number", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, ErrInvalidParameter.Wrap("value must be finite")
	}
	return f, nil
}

// booleanParam validates attestation: "boolean". Note that this validator
// is exercised only on the DAP-internal rebind path (internal/dap sets
// params["attestation"] itself); a caller-supplied "attestation" key is
// rejected upstream of validation entirely (spec.md §3 invariant), see
// ErrAttestationReserved.
func booleanParam(raw any) (any, error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, ErrInvalidParameter.Wrapf("expected bool, got %T", raw)
	}
	return b, nil
}

// expirationParam validates expiration: "a timestamp, strictly in the
// future".
func expirationParam(raw any) (any, error) {
	var t time.Time
	switch v := raw.(type) {
	case time.Time:
		t = v
	case int64:
		t = time.Unix(v, 0).UTC()
	case float64:
		t = time.Unix(int64(v), 0).UTC()
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, ErrInvalidParameter.Wrapf("not a valid RFC3339 timestamp: %v", err)
		}
		t = parsed
	default:
		return nil, ErrInvalidParameter.Wrapf("cannot coerce %T to a timestamp", raw)
	}
	if !t.After(time.Now()) {
		return nil, ErrInvalidParameter.Wrap("expiration must be strictly in the future")
	}
	return t.Unix(), nil
}

// Validators is the closed parameter-name -> validator mapping of spec.md
// §3. Any name absent from this map is, by definition, a validation
// failure — there is no fallback or permissive default.
var Validators = map[string]Validator{
	"patient_id":         objectIDParam,
	"user_id":            objectIDParam,
	"access_control_id":  objectIDParam,
	"target_user_id":     objectIDParam,
	"access_control_path": nonEmptyStringParam,
	"access_type":        accessTypeParam,
	"height_input":       finiteRealParam,
	"input_bp":           finiteRealParam,
	"attestation":        booleanParam,
	"expiration":         expirationParam,
}

// Validate looks up and runs the validator for name, producing
// ErrUnknownParameter if name is not in the closed set.
func Validate(name string, raw any) (any, error) {
	v, ok := Validators[name]
	if !ok {
		return nil, ErrUnknownParameter.Wrapf("parameter %q", name)
	}
	val, err := v(raw)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	return val, nil
}
