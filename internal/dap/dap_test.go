package dap

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/virtengine/vericare/internal/auth"
	"github.com/virtengine/vericare/internal/buildid"
	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/noncestore"
	"github.com/virtengine/vericare/internal/pipeline"
	"github.com/virtengine/vericare/internal/signing"
	"github.com/virtengine/vericare/internal/store"
	"github.com/virtengine/vericare/internal/wire"
)

type fakeVerifierClient struct {
	acceptAttestation bool
}

func (f *fakeVerifierClient) RequestNonce(ctx context.Context) ([]byte, error) {
	return []byte("deadbeefdeadbeefdeadbeef"), nil
}

func (f *fakeVerifierClient) RequestAttestation(ctx context.Context, sourceClaim, pipelineClaim string, nonce []byte, pipelineName, peer string, quote hwattest.Quote) (*signing.SignedAttestation, error) {
	if !f.acceptAttestation {
		return nil, errWireReject.Wrap("rejected")
	}
	return &signing.SignedAttestation{Payload: signing.AttestationPayload{Expiration: time.Now().Add(time.Minute).Unix()}}, nil
}

// testFixture wires a DAP instance against a fresh in-memory document store
// seeded with one patient record, one authorization document (doctor has
// read, external has enclave), and one hashed-password user per role.
type testFixture struct {
	d          *DAP
	patientID  bson.ObjectID
	doctorID   bson.ObjectID
	externalID bson.ObjectID
}

func newTestFixture(t *testing.T, vc VerifierClient) *testFixture {
	t.Helper()
	patientID := bson.NewObjectID()
	doctorID := bson.NewObjectID()
	externalID := bson.NewObjectID()

	docs := store.NewMemoryStore()
	require.NoError(t, docs.InsertOne(context.Background(), "patients", bson.M{
		"_id": patientID, "bloodPressure": 100.0,
	}))
	require.NoError(t, docs.InsertOne(context.Background(), "authorizations", bson.M{
		"_id": patientID,
		"users": bson.A{
			bson.M{"userId": doctorID, "permissions": bson.A{"read"}, "expiration": time.Now().Add(time.Hour).Unix()},
			bson.M{"userId": externalID, "permissions": bson.A{"enclave"}, "expiration": time.Now().Add(time.Hour).Unix()},
		},
	}))

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	users := map[string]bson.M{
		"patient":  {"_id": patientID, "passwordHash": hash},
		"doctor":   {"_id": doctorID, "passwordHash": hash},
		"external": {"_id": externalID, "passwordHash": hash},
	}
	authn := auth.NewAuthenticator(func(_ context.Context, username string) (bson.M, error) {
		u, ok := users[username]
		if !ok {
			return nil, nil
		}
		return u, nil
	})

	pipelines := pipeline.NewRegistry()
	pipelines.Set("get_bp", pipeline.BuildGetFieldPipeline("patients", "authorizations", "bloodPressure"))

	routes := Routes{"get_bp": {Name: "get_bp", PipelineName: "get_bp", Collection: "patients"}}

	signer, err := signing.Generate(identityDAP, zerolog.Nop())
	require.NoError(t, err)

	d := New(signer, buildid.Image("dap-source"), pipelines, routes, authn, docs, vc, noncestore.NewMemoryStore(noncestore.DefaultExpiration), nil, hwattest.Quote{}, zerolog.Nop())
	return &testFixture{d: d, patientID: patientID, doctorID: doctorID, externalID: externalID}
}

func TestHandleQueryOwnerReadReleasesField(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	env := wire.QueryRequest("get_bp", "patient", "secret", map[string]any{"patient_id": f.patientID})

	reply := f.d.HandleQuery(context.Background(), env, nil)
	require.False(t, reply.IsError())
	require.NotEmpty(t, reply.Response)
}

func TestHandleQueryDoctorReadReleasesField(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	env := wire.QueryRequest("get_bp", "doctor", "secret", map[string]any{"patient_id": f.patientID})

	reply := f.d.HandleQuery(context.Background(), env, nil)
	require.False(t, reply.IsError())
	require.NotEmpty(t, reply.Response)
}

func TestHandleQueryUnknownRouteRejected(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	env := wire.QueryRequest("no_such_route", "patient", "secret", map[string]any{"patient_id": f.patientID})

	reply := f.d.HandleQuery(context.Background(), env, nil)
	require.True(t, reply.IsError())
	require.Equal(t, wire.KindProtocol, reply.Error)
}

func TestHandleQueryAuthFailureRejected(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	env := wire.QueryRequest("get_bp", "patient", "wrong-password", map[string]any{"patient_id": f.patientID})

	reply := f.d.HandleQuery(context.Background(), env, nil)
	require.True(t, reply.IsError())
	require.Equal(t, wire.KindAuth, reply.Error)
}

func TestHandleQueryRejectsCallerSuppliedAttestationParam(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	env := wire.QueryRequest("get_bp", "patient", "secret", map[string]any{
		"patient_id": f.patientID, "attestation": true,
	})

	reply := f.d.HandleQuery(context.Background(), env, nil)
	require.True(t, reply.IsError())
	require.Equal(t, wire.KindParameter, reply.Error)
}

func TestHandleQueryEnclaveWithoutAttestationFailsWithNoEvidenceCallback(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	env := wire.QueryRequest("get_bp", "external", "secret", map[string]any{"patient_id": f.patientID})

	reply := f.d.HandleQuery(context.Background(), env, nil)
	require.True(t, reply.IsError())
	require.Equal(t, wire.KindAttestation, reply.Error)
}

func TestHandleQueryEnclaveMutualAttestationSucceeds(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	env := wire.QueryRequest("get_bp", "external", "secret", map[string]any{"patient_id": f.patientID})

	called := false
	requestCallerEvidence := func(ctx context.Context) (string, *signing.SignedAttestation, error) {
		called = true
		return "external", &signing.SignedAttestation{Payload: signing.AttestationPayload{Expiration: time.Now().Add(time.Minute).Unix()}}, nil
	}

	reply := f.d.HandleQuery(context.Background(), env, requestCallerEvidence)
	require.True(t, called)
	require.False(t, reply.IsError())
	require.NotEmpty(t, reply.Response)
}

func TestHandleQueryEnclaveMutualAttestationFailureRejected(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	env := wire.QueryRequest("get_bp", "external", "secret", map[string]any{"patient_id": f.patientID})

	requestCallerEvidence := func(ctx context.Context) (string, *signing.SignedAttestation, error) {
		return "", nil, errWireReject.Wrap("client cannot attest")
	}

	reply := f.d.HandleQuery(context.Background(), env, requestCallerEvidence)
	require.True(t, reply.IsError())
	require.Equal(t, wire.KindAttestation, reply.Error)
}

func TestHandleQueryUnauthorizedStrangerGetsNullField(t *testing.T) {
	f := newTestFixture(t, &fakeVerifierClient{})
	stranger := bson.NewObjectID()
	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)

	// Re-wire the authenticator to recognize only the stranger, via a fresh
	// fixture with the same patient record and an authorization document
	// that grants no one.
	docs := store.NewMemoryStore()
	require.NoError(t, docs.InsertOne(context.Background(), "patients", bson.M{
		"_id": f.patientID, "bloodPressure": 100.0,
	}))
	require.NoError(t, docs.InsertOne(context.Background(), "authorizations", bson.M{
		"_id": f.patientID, "users": bson.A{},
	}))
	authn := auth.NewAuthenticator(func(_ context.Context, username string) (bson.M, error) {
		if username != "stranger" {
			return nil, nil
		}
		return bson.M{"_id": stranger, "passwordHash": hash}, nil
	})
	pipelines := pipeline.NewRegistry()
	pipelines.Set("get_bp", pipeline.BuildGetFieldPipeline("patients", "authorizations", "bloodPressure"))
	routes := Routes{"get_bp": {Name: "get_bp", PipelineName: "get_bp", Collection: "patients"}}
	signer, err := signing.Generate(identityDAP, zerolog.Nop())
	require.NoError(t, err)
	d := New(signer, buildid.Image("dap-source"), pipelines, routes, authn, docs, &fakeVerifierClient{}, noncestore.NewMemoryStore(noncestore.DefaultExpiration), nil, hwattest.Quote{}, zerolog.Nop())

	env := wire.QueryRequest("get_bp", "stranger", "secret", map[string]any{"patient_id": f.patientID})
	reply := d.HandleQuery(context.Background(), env, nil)
	require.False(t, reply.IsError())
	require.NotEmpty(t, reply.Response)

	payload, err := signing.VerifyResult(signer.PublicKey(), reply.Response)
	require.NoError(t, err)
	require.JSONEq(t, `[{"bloodPressure":null}]`, string(payload))
}
