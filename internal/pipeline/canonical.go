// Package pipeline holds the Verifier-controlled registry of approved query
// templates (spec.md §3 "Approved pipeline") and the canonical byte encoding
// that Verifier attestation binds to a nonce — "the single most delicate
// contract" per spec.md §9. Both the Verifier and the Data-Access Proxy /
// Personal Intermediary must produce byte-identical output for the same
// logical document, or attestation is meaningless.
package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// CanonicalString renders doc as the minified, stable-key-order string form
// spec.md §3 and §9 require. Only bson.D (ordered document), bson.A
// (ordered array) and the JSON scalar types appear in an approved pipeline;
// anything else is a programming error in the registry, not caller input.
//
// Stability rule: a bson.D's keys are serialized in insertion order, i.e.
// the order they were registered in — not sorted. A bare Go map has no such
// guarantee (and encoding/json would sort its keys alphabetically instead),
// which is exactly why approved pipelines are authored as bson.D, never
// map[string]any.
func CanonicalString(doc any) (string, error) {
	var sb strings.Builder
	if err := writeCanonical(&sb, doc); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeCanonical(sb *strings.Builder, v any) error {
	switch t := v.(type) {
	case bson.D:
		sb.WriteByte('{')
		for i, elem := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			key, err := json.Marshal(elem.Key)
			if err != nil {
				return err
			}
			sb.Write(key)
			sb.WriteByte(':')
			if err := writeCanonical(sb, elem.Value); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil

	case bson.M:
		// bson.M is an unordered Go map; canonicalizing it requires an
		// explicit key sort so the output is at least deterministic.
		// Approved pipelines should prefer bson.D so registration order
		// is preserved, but bson.M leaves (e.g. a literal match filter)
		// canonicalize safely this way.
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(key)
			sb.WriteByte(':')
			if err := writeCanonical(sb, t[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil

	case bson.A:
		return writeArray(sb, []any(t))
	case []any:
		return writeArray(sb, t)

	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		sb.Write(b)
		return nil

	case bool:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
		return nil

	case nil:
		sb.WriteString("null")
		return nil

	case int:
		sb.WriteString(strconv.Itoa(t))
		return nil
	case int32:
		sb.WriteString(strconv.FormatInt(int64(t), 10))
		return nil
	case int64:
		sb.WriteString(strconv.FormatInt(t, 10))
		return nil

	case float64:
		// Fixed number formatting (spec.md §9): shortest round-trip
		// decimal representation, never exponent notation, so the same
		// logical number always yields the same bytes.
		sb.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
		return nil

	default:
		return fmt.Errorf("pipeline: canonical encoder: unsupported value type %T", v)
	}
}

func writeArray(sb *strings.Builder, items []any) error {
	sb.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := writeCanonical(sb, item); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}
