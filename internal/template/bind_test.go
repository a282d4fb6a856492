package template

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestBindReplacesKnownPlaceholders(t *testing.T) {
	oid := bson.NewObjectID()
	tmpl := bson.D{
		{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}},
		{Key: "literal", Value: "$not_a_param_name_but_has_dollar"},
	}
	params := map[string]any{"patient_id": oid.Hex()}

	bound, err := Bind(tmpl, params)
	require.NoError(t, err)

	out, ok := bound.(bson.D)
	require.True(t, ok)
	match := out[0].Value.(bson.D)
	require.Equal(t, oid, match[0].Value)
	require.Equal(t, "$not_a_param_name_but_has_dollar", out[1].Value)
}

func TestBindRejectsMissingParameter(t *testing.T) {
	tmpl := bson.D{{Key: "x", Value: "$patient_id"}}
	_, err := Bind(tmpl, map[string]any{})
	require.ErrorIs(t, err, ErrMissingParameter)
}

func TestBindRejectsInvalidValue(t *testing.T) {
	tmpl := bson.D{{Key: "x", Value: "$patient_id"}}
	_, err := Bind(tmpl, map[string]any{"patient_id": "not-an-object-id"})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBindPreservesArrayStructure(t *testing.T) {
	tmpl := bson.A{
		bson.D{{Key: "a", Value: "$access_type"}},
		"plain string",
		42,
	}
	bound, err := Bind(tmpl, map[string]any{"access_type": "read"})
	require.NoError(t, err)
	out := bound.(bson.A)
	require.Len(t, out, 3)
	require.Equal(t, "plain string", out[1])
	require.Equal(t, 42, out[2])
}

func TestRejectReservedParamsBlocksAttestation(t *testing.T) {
	err := RejectReservedParams(map[string]any{"attestation": true})
	require.ErrorIs(t, err, ErrAttestationReserved)
}

func TestRejectReservedParamsBlocksUnknownName(t *testing.T) {
	err := RejectReservedParams(map[string]any{"favorite_color": "blue"})
	require.ErrorIs(t, err, ErrUnknownParameter)
}

func TestRejectReservedParamsAllowsKnownNames(t *testing.T) {
	err := RejectReservedParams(map[string]any{"patient_id": bson.NewObjectID().Hex()})
	require.NoError(t, err)
}

func TestWithAttestationDoesNotMutateOriginal(t *testing.T) {
	original := map[string]any{"patient_id": "x"}
	out := WithAttestation(original, true)
	require.NotContains(t, original, "attestation")
	require.Equal(t, true, out["attestation"])
	require.Equal(t, "x", out["patient_id"])
}

func TestCheckNoResidualPlaceholdersCatchesUnresolvedLeaf(t *testing.T) {
	// A leaf left unresolved only happens defensively (Bind always
	// substitutes or errors), so construct one directly.
	residual := bson.D{{Key: "x", Value: "$patient_id"}}
	err := CheckNoResidualPlaceholders(residual)
	require.ErrorIs(t, err, ErrUnresolvedPlaceholder)
}

func TestExpirationParamRejectsPast(t *testing.T) {
	_, err := Validate("expiration", time.Now().Add(-time.Hour))
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestExpirationParamAcceptsFuture(t *testing.T) {
	val, err := Validate("expiration", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, ok := val.(int64)
	require.True(t, ok)
}

func TestAccessTypeParamAcceptsOnlyClosedSets(t *testing.T) {
	_, err := Validate("access_type", []string{"read", "write"})
	require.NoError(t, err)

	_, err = Validate("access_type", []string{"admin"})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFiniteRealParamRejectsNonFinite(t *testing.T) {
	_, err := Validate("height_input", math.Inf(1))
	require.ErrorIs(t, err, ErrInvalidParameter)
}
