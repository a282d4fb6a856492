package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/virtengine/vericare/internal/pipeline"
)

func seedPatientAndAuth(t *testing.T, ms *MemoryStore, patientID, doctorID, externalID bson.ObjectID, expiresAt time.Time) {
	require.NoError(t, ms.InsertOne(context.Background(), "patients", bson.M{
		"_id":           patientID,
		"bloodPressure": 100.0,
	}))
	require.NoError(t, ms.InsertOne(context.Background(), "authorizations", bson.M{
		"_id": patientID,
		"users": bson.A{
			bson.M{"userId": doctorID, "permissions": bson.A{"read"}, "expiration": expiresAt.Unix()},
			bson.M{"userId": externalID, "permissions": bson.A{"enclave"}, "expiration": expiresAt.Unix()},
		},
	}))
}

func TestMemoryStoreOwnerReadReleasesField(t *testing.T) {
	ms := NewMemoryStore()
	patientID := bson.NewObjectID()
	doctorID := bson.NewObjectID()
	externalID := bson.NewObjectID()
	seedPatientAndAuth(t, ms, patientID, doctorID, externalID, time.Now().Add(time.Hour))

	p := pipeline.BuildGetFieldPipeline("patients", "authorizations", "bloodPressure")
	bound := bindLiteral(t, p, map[string]any{
		"patient_id": patientID, "user_id": patientID, "attestation": false,
	})

	results, err := ms.Aggregate(context.Background(), "patients", bound)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 100.0, results[0]["bloodPressure"])
}

func TestMemoryStoreDoctorReadReleasesField(t *testing.T) {
	ms := NewMemoryStore()
	patientID := bson.NewObjectID()
	doctorID := bson.NewObjectID()
	externalID := bson.NewObjectID()
	seedPatientAndAuth(t, ms, patientID, doctorID, externalID, time.Now().Add(time.Hour))

	p := pipeline.BuildGetFieldPipeline("patients", "authorizations", "bloodPressure")
	bound := bindLiteral(t, p, map[string]any{
		"patient_id": patientID, "user_id": doctorID, "attestation": false,
	})

	results, err := ms.Aggregate(context.Background(), "patients", bound)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 100.0, results[0]["bloodPressure"])
}

func TestMemoryStoreEnclaveWithoutAttestationYieldsSentinel(t *testing.T) {
	ms := NewMemoryStore()
	patientID := bson.NewObjectID()
	doctorID := bson.NewObjectID()
	externalID := bson.NewObjectID()
	seedPatientAndAuth(t, ms, patientID, doctorID, externalID, time.Now().Add(time.Hour))

	p := pipeline.BuildGetFieldPipeline("patients", "authorizations", "bloodPressure")
	bound := bindLiteral(t, p, map[string]any{
		"patient_id": patientID, "user_id": externalID, "attestation": false,
	})

	results, err := ms.Aggregate(context.Background(), "patients", bound)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, pipeline.SentinelAttestationRequired, results[0]["bloodPressure"])
}

func TestMemoryStoreEnclaveWithAttestationReleasesField(t *testing.T) {
	ms := NewMemoryStore()
	patientID := bson.NewObjectID()
	doctorID := bson.NewObjectID()
	externalID := bson.NewObjectID()
	seedPatientAndAuth(t, ms, patientID, doctorID, externalID, time.Now().Add(time.Hour))

	p := pipeline.BuildGetFieldPipeline("patients", "authorizations", "bloodPressure")
	bound := bindLiteral(t, p, map[string]any{
		"patient_id": patientID, "user_id": externalID, "attestation": true,
	})

	results, err := ms.Aggregate(context.Background(), "patients", bound)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 100.0, results[0]["bloodPressure"])
}

func TestMemoryStoreUnauthorizedYieldsNull(t *testing.T) {
	ms := NewMemoryStore()
	patientID := bson.NewObjectID()
	doctorID := bson.NewObjectID()
	externalID := bson.NewObjectID()
	stranger := bson.NewObjectID()
	seedPatientAndAuth(t, ms, patientID, doctorID, externalID, time.Now().Add(time.Hour))

	p := pipeline.BuildGetFieldPipeline("patients", "authorizations", "bloodPressure")
	bound := bindLiteral(t, p, map[string]any{
		"patient_id": patientID, "user_id": stranger, "attestation": false,
	})

	results, err := ms.Aggregate(context.Background(), "patients", bound)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Nil(t, results[0]["bloodPressure"])
}

func TestMemoryStoreExpiredAuthorizationYieldsNull(t *testing.T) {
	ms := NewMemoryStore()
	patientID := bson.NewObjectID()
	doctorID := bson.NewObjectID()
	externalID := bson.NewObjectID()
	seedPatientAndAuth(t, ms, patientID, doctorID, externalID, time.Now().Add(-time.Hour))

	p := pipeline.BuildGetFieldPipeline("patients", "authorizations", "bloodPressure")
	bound := bindLiteral(t, p, map[string]any{
		"patient_id": patientID, "user_id": doctorID, "attestation": false,
	})

	results, err := ms.Aggregate(context.Background(), "patients", bound)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Nil(t, results[0]["bloodPressure"])
}

// bindLiteral substitutes params directly into the $patient_id/$user_id/
// $attestation placeholders without going through internal/template, since
// internal/store must not depend on internal/template (it sits below it in
// the call graph); it mirrors only the substitution this test needs.
func bindLiteral(t *testing.T, p bson.A, params map[string]any) bson.A {
	t.Helper()
	b, err := bson.MarshalExtJSON(p, false, false)
	require.NoError(t, err)
	var generic any
	require.NoError(t, bson.UnmarshalExtJSON(b, false, &generic))
	return substitute(generic, params).(bson.A)
}

func substitute(node any, params map[string]any) any {
	switch t := node.(type) {
	case bson.D:
		out := make(bson.D, len(t))
		for i, e := range t {
			out[i] = bson.E{Key: e.Key, Value: substitute(e.Value, params)}
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, v := range t {
			out[i] = substitute(v, params)
		}
		return out
	case string:
		if len(t) > 1 && t[0] == '$' {
			if v, ok := params[t[1:]]; ok {
				return v
			}
		}
		return t
	default:
		return t
	}
}
