package verifier

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/virtengine/vericare/internal/buildid"
	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/noncestore"
	"github.com/virtengine/vericare/internal/pipeline"
	"github.com/virtengine/vericare/internal/signing"
)

const testPeer = "dap"

func newTestVerifier(t *testing.T, peerSigner *signing.Signer, image []byte, stages bson.A) *Verifier {
	t.Helper()
	vsigner, err := signing.Generate("verifier", zerolog.Nop())
	require.NoError(t, err)

	nonces := noncestore.NewMemoryStore(noncestore.DefaultExpiration)
	pipelines := pipeline.NewRegistry()
	require.NoError(t, pipelines.Register("get_bp", stages))

	images := buildid.NewRegistry()
	images.Set(testPeer, buildid.Image(image))

	keys := StaticPeerKeys{testPeer: peerSigner.PublicKey()}

	return New(vsigner, nonces, pipelines, images, keys, hwattest.NoopVerifier{}, zerolog.Nop())
}

func TestRequestAttestationHappyPath(t *testing.T) {
	peer, err := signing.Generate(testPeer, zerolog.Nop())
	require.NoError(t, err)
	image := []byte("source-bytes-v1")
	stages := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}}}}

	v := newTestVerifier(t, peer, image, stages)
	ctx := context.Background()

	nonce, err := v.RequestNonce(ctx)
	require.NoError(t, err)

	canonical, err := pipeline.CanonicalString(stages)
	require.NoError(t, err)

	sourceClaim := peer.SignClaim(image, nonce)
	pipelineClaim := peer.SignClaim([]byte(canonical), nonce)

	att, err := v.RequestAttestation(ctx, sourceClaim, pipelineClaim, nonce, "get_bp", testPeer, hwattest.Quote{})
	require.NoError(t, err)
	require.Equal(t, sourceClaim, att.Payload.SourceCodeClaim)
	require.Equal(t, pipelineClaim, att.Payload.LoadedPipelineClaim)
}

func TestRequestAttestationRejectsReplayedNonce(t *testing.T) {
	peer, err := signing.Generate(testPeer, zerolog.Nop())
	require.NoError(t, err)
	image := []byte("source-bytes-v1")
	stages := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}}}}

	v := newTestVerifier(t, peer, image, stages)
	ctx := context.Background()

	nonce, err := v.RequestNonce(ctx)
	require.NoError(t, err)
	canonical, err := pipeline.CanonicalString(stages)
	require.NoError(t, err)
	sourceClaim := peer.SignClaim(image, nonce)
	pipelineClaim := peer.SignClaim([]byte(canonical), nonce)

	_, err = v.RequestAttestation(ctx, sourceClaim, pipelineClaim, nonce, "get_bp", testPeer, hwattest.Quote{})
	require.NoError(t, err)

	_, err = v.RequestAttestation(ctx, sourceClaim, pipelineClaim, nonce, "get_bp", testPeer, hwattest.Quote{})
	require.ErrorIs(t, err, Rejected)
}

func TestRequestAttestationRejectsUnknownPeer(t *testing.T) {
	peer, err := signing.Generate(testPeer, zerolog.Nop())
	require.NoError(t, err)
	image := []byte("source-bytes-v1")
	stages := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}}}}

	v := newTestVerifier(t, peer, image, stages)
	ctx := context.Background()

	nonce, err := v.RequestNonce(ctx)
	require.NoError(t, err)
	canonical, err := pipeline.CanonicalString(stages)
	require.NoError(t, err)
	sourceClaim := peer.SignClaim(image, nonce)
	pipelineClaim := peer.SignClaim([]byte(canonical), nonce)

	_, err = v.RequestAttestation(ctx, sourceClaim, pipelineClaim, nonce, "get_bp", "someone-else", hwattest.Quote{})
	require.ErrorIs(t, err, Rejected)
}

func TestRequestAttestationRejectsUnknownPipeline(t *testing.T) {
	peer, err := signing.Generate(testPeer, zerolog.Nop())
	require.NoError(t, err)
	image := []byte("source-bytes-v1")
	stages := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}}}}

	v := newTestVerifier(t, peer, image, stages)
	ctx := context.Background()

	nonce, err := v.RequestNonce(ctx)
	require.NoError(t, err)
	sourceClaim := peer.SignClaim(image, nonce)
	pipelineClaim := peer.SignClaim([]byte("whatever"), nonce)

	_, err = v.RequestAttestation(ctx, sourceClaim, pipelineClaim, nonce, "no_such_pipeline", testPeer, hwattest.Quote{})
	require.ErrorIs(t, err, Rejected)
}

func TestRequestAttestationRejectsTamperedPipelineBytes(t *testing.T) {
	peer, err := signing.Generate(testPeer, zerolog.Nop())
	require.NoError(t, err)
	image := []byte("source-bytes-v1")
	registered := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}}}}
	claimed := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$anyone"}}}}}

	v := newTestVerifier(t, peer, image, registered)
	ctx := context.Background()

	nonce, err := v.RequestNonce(ctx)
	require.NoError(t, err)
	sourceClaim := peer.SignClaim(image, nonce)

	claimedCanonical, err := pipeline.CanonicalString(claimed)
	require.NoError(t, err)
	pipelineClaim := peer.SignClaim([]byte(claimedCanonical), nonce)

	_, err = v.RequestAttestation(ctx, sourceClaim, pipelineClaim, nonce, "get_bp", testPeer, hwattest.Quote{})
	require.ErrorIs(t, err, Rejected)
}

func TestRequestAttestationRejectsTamperedSourceClaim(t *testing.T) {
	peer, err := signing.Generate(testPeer, zerolog.Nop())
	require.NoError(t, err)
	image := []byte("source-bytes-v1")
	stages := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}}}}

	v := newTestVerifier(t, peer, image, stages)
	ctx := context.Background()

	nonce, err := v.RequestNonce(ctx)
	require.NoError(t, err)
	canonical, err := pipeline.CanonicalString(stages)
	require.NoError(t, err)
	sourceClaim := peer.SignClaim([]byte("wrong-source-bytes"), nonce)
	pipelineClaim := peer.SignClaim([]byte(canonical), nonce)

	_, err = v.RequestAttestation(ctx, sourceClaim, pipelineClaim, nonce, "get_bp", testPeer, hwattest.Quote{})
	require.ErrorIs(t, err, Rejected)
}

func TestRequestAttestationAcceptsHardwareQuoteBoundToNonce(t *testing.T) {
	peer, err := signing.Generate(testPeer, zerolog.Nop())
	require.NoError(t, err)
	image := []byte("source-bytes-v1")
	stages := bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: "$patient_id"}}}}}

	v := newTestVerifier(t, peer, image, stages)
	ctx := context.Background()

	nonce, err := v.RequestNonce(ctx)
	require.NoError(t, err)
	canonical, err := pipeline.CanonicalString(stages)
	require.NoError(t, err)
	sourceClaim := peer.SignClaim(image, nonce)
	pipelineClaim := peer.SignClaim([]byte(canonical), nonce)

	// The Verifier binds quote.ReportData to the same nonce the Ed25519
	// claims are signed over before handing it to the hardware verifier, so
	// a caller only needs to supply the platform and raw quote bytes.
	quote := hwattest.Quote{Platform: hwattest.PlatformSGXDCAP, Raw: []byte("quote-bytes")}
	att, err := v.RequestAttestation(ctx, sourceClaim, pipelineClaim, nonce, "get_bp", testPeer, quote)
	require.NoError(t, err)
	require.NotNil(t, att)
}
