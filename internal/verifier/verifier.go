// Package verifier implements spec.md §4.1: the root of trust that issues
// nonces, checks evidence against known-good source and pipeline hashes,
// and signs attestation tokens.
package verifier

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtengine/vericare/internal/buildid"
	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/metrics"
	"github.com/virtengine/vericare/internal/noncestore"
	"github.com/virtengine/vericare/internal/pipeline"
	"github.com/virtengine/vericare/internal/signing"
)

// DefaultAttestationTTL is the lifetime of an issued attestation token
// (spec.md §4.1 step 5: "expiration: now + 300").
const DefaultAttestationTTL = 300 * time.Second

// PeerKeys resolves a peer identity (DAP or PI) to its Ed25519 public
// signing key. The Verifier must hold both (spec.md §4.1 "Responsibility").
type PeerKeys interface {
	PublicKey(peer string) (ed25519.PublicKey, bool)
}

// StaticPeerKeys is the simplest PeerKeys: a fixed map configured at
// startup.
type StaticPeerKeys map[string]ed25519.PublicKey

func (k StaticPeerKeys) PublicKey(peer string) (ed25519.PublicKey, bool) {
	pub, ok := k[peer]
	return pub, ok
}

// Verifier holds the registry of approved pipelines and source images, the
// pending-nonce map, and its own signing identity.
type Verifier struct {
	signer     *signing.Signer
	nonces     noncestore.Store
	pipelines  *pipeline.Registry
	images     *buildid.Registry
	peerKeys   PeerKeys
	hwVerifier hwattest.Verifier
	ttl        time.Duration
	log        zerolog.Logger
}

// New builds a Verifier. images maps a peer identity to the source-byte
// image the Verifier expects that peer to be running (§9 build-time
// embedding note). hwVerifier validates any hardware quote a peer attaches
// to its attestation request; a nil hwVerifier falls back to
// hwattest.NoopVerifier, accepting any peer that carries no hardware
// evidence at all.
func New(signer *signing.Signer, nonces noncestore.Store, pipelines *pipeline.Registry, images *buildid.Registry, peerKeys PeerKeys, hwVerifier hwattest.Verifier, log zerolog.Logger) *Verifier {
	if hwVerifier == nil {
		hwVerifier = hwattest.NoopVerifier{}
	}
	return &Verifier{
		signer:     signer,
		nonces:     nonces,
		pipelines:  pipelines,
		images:     images,
		peerKeys:   peerKeys,
		hwVerifier: hwVerifier,
		ttl:        DefaultAttestationTTL,
		log:        log.With().Str("component", "verifier").Logger(),
	}
}

// RequestNonce implements spec.md §4.1's request_nonce operation.
func (v *Verifier) RequestNonce(ctx context.Context) ([]byte, error) {
	nonce, err := v.nonces.Issue(ctx)
	if err != nil {
		return nil, err
	}
	metrics.NoncesIssued.WithLabelValues("verifier").Inc()
	return nonce, nil
}

// RequestAttestation implements spec.md §4.1's request_attestation
// operation. Every failure path returns the single Rejected sentinel,
// wrapping an internal cause for local logging only — never forwarded to
// the peer (spec.md §7 "Propagation").
func (v *Verifier) RequestAttestation(ctx context.Context, sourceClaim, pipelineClaim string, nonce []byte, pipelineName, peer string, quote hwattest.Quote) (*signing.SignedAttestation, error) {
	log := v.log.With().Str("peer", peer).Str("pipeline", pipelineName).Logger()

	outcome := "rejected"
	defer func() { metrics.AttestationOutcomes.WithLabelValues(outcome).Inc() }()

	// Step 1: nonce must exist and not be expired/reused. Consume retires
	// it immediately so a concurrent replay of the same nonce cannot also
	// succeed (spec.md §3 "A nonce is consumed at most once").
	if err := v.nonces.Consume(ctx, nonce); err != nil {
		log.Warn().Err(err).Msg("attestation rejected: nonce")
		return nil, Rejected.Wrap(err.Error())
	}

	// Step 2: verify each claim's signature under peer's public key.
	pub, ok := v.peerKeys.PublicKey(peer)
	if !ok {
		log.Warn().Msg("attestation rejected: unknown peer")
		return nil, Rejected.Wrap("unknown peer")
	}

	image, ok := v.images.Get(peer)
	if !ok {
		log.Warn().Msg("attestation rejected: no known source image for peer")
		return nil, Rejected.Wrap("no known source image")
	}

	// Step 3: recompute expected source hash and compare against the
	// peer-signed claim.
	if err := signing.VerifyClaim(pub, image, nonce, sourceClaim); err != nil {
		log.Warn().Err(err).Msg("attestation rejected: source claim")
		return nil, Rejected.Wrap(err.Error())
	}

	// Step 4: recompute expected pipeline hash from the registry's live
	// entry and compare against the peer-signed claim.
	approved, err := v.pipelines.Get(pipelineName)
	if err != nil {
		log.Warn().Err(err).Msg("attestation rejected: unknown pipeline")
		return nil, Rejected.Wrap(err.Error())
	}
	canonical, err := approved.Canonical()
	if err != nil {
		log.Warn().Err(err).Msg("attestation rejected: pipeline not canonicalizable")
		return nil, Rejected.Wrap(err.Error())
	}
	if err := signing.VerifyClaim(pub, []byte(canonical), nonce, pipelineClaim); err != nil {
		log.Warn().Err(err).Msg("attestation rejected: pipeline claim")
		return nil, Rejected.Wrap(err.Error())
	}

	// Step 4.5: if the peer attached a hardware attestation quote, validate
	// it under the platform's trust chain. A peer that attaches no quote
	// (quote.Platform is "" or hwattest.PlatformNone) is unaffected — hardware
	// evidence is an optional supplement to the Ed25519 claims above, never a
	// substitute for them.
	if quote.Platform != "" && quote.Platform != hwattest.PlatformNone {
		quote.ReportData = nonce
		if err := v.hwVerifier.Verify(quote); err != nil {
			log.Warn().Err(err).Msg("attestation rejected: hardware quote")
			return nil, Rejected.Wrap(err.Error())
		}
	}

	// Step 5: build and sign the attestation payload.
	payload := signing.AttestationPayload{
		Expiration:           time.Now().Add(v.ttl).Unix(),
		SourceCodeClaim:      sourceClaim,
		LoadedPipelineClaim:  pipelineClaim,
	}
	att, err := v.signer.SignAttestation(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to sign attestation")
		return nil, Rejected.Wrap(err.Error())
	}

	outcome = "accepted"
	log.Info().Msg("attestation issued")
	return att, nil
}
