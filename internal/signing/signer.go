// Package signing provides the Ed25519 signing and verification primitives
// shared by the Verifier, the Data-Access Proxy and the Personal
// Intermediary, modeled on pkg/verification/signer in the teacher repo but
// trimmed to what this protocol needs: a single process-scoped key pair, no
// rotation (spec.md §5 "signing key is read-only after startup").
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"
)

// Signer signs and verifies messages with a single Ed25519 key pair.
// Identity is the component name (e.g. "dap", "pi", "verifier") used only
// for log attribution; it never appears on the wire.
type Signer struct {
	identity string
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	log      zerolog.Logger
}

// New builds a Signer from an existing private key, as loaded by
// internal/config from disk or environment at process start.
func New(identity string, priv ed25519.PrivateKey, log zerolog.Logger) (*Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrKeyLoadFailed.Wrapf("want %d byte Ed25519 private key, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrKeyLoadFailed.Wrap("unable to derive public key")
	}
	return &Signer{
		identity: identity,
		priv:     priv,
		pub:      pub,
		log:      log.With().Str("component", "signer").Str("identity", identity).Logger(),
	}, nil
}

// Generate creates a fresh random key pair, for local development and tests.
func Generate(identity string, log zerolog.Logger) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, ErrKeyGenerationFailed.Wrapf("%v", err)
	}
	_ = pub
	return New(identity, priv, log)
}

// PublicKey returns the signer's public key, safe to disclose to peers.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// Identity returns the component name this signer represents.
func (s *Signer) Identity() string {
	return s.identity
}

// Sign signs arbitrary message bytes and returns a base64-encoded signature.
func (s *Signer) Sign(message []byte) string {
	sig := ed25519.Sign(s.priv, message)
	return base64.StdEncoding.EncodeToString(sig)
}

// Verify verifies a base64-encoded signature over message against pub.
func Verify(pub ed25519.PublicKey, message []byte, sigB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return ErrInvalidSignature.Wrapf("bad base64: %v", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey.Wrapf("want %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if !ed25519.Verify(pub, message, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// HashAndNonce computes sha256(artifact ∥ nonce), the evidence claim digest
// of spec.md §3. artifact is either source bytes or a canonical pipeline
// encoding; nonce is the raw (not base64) nonce bytes.
func HashAndNonce(artifact, nonce []byte) []byte {
	h := sha256.New()
	h.Write(artifact)
	h.Write(nonce)
	return h.Sum(nil)
}

// SignClaim signs sha256(artifact ∥ nonce) and returns the base64 signature,
// i.e. the "evidence claim" of spec.md §3.
func (s *Signer) SignClaim(artifact, nonce []byte) string {
	digest := HashAndNonce(artifact, nonce)
	return s.Sign(digest)
}

// VerifyClaim verifies an evidence claim against the expected artifact and
// nonce under the peer's public key.
func VerifyClaim(pub ed25519.PublicKey, artifact, nonce []byte, claimB64 string) error {
	digest := HashAndNonce(artifact, nonce)
	return Verify(pub, digest, claimB64)
}

// String renders a short, log-safe identifier for the signer's key. Signing
// keys and their associated randomness are process-scoped and never logged
// in full (spec.md §5).
func (s *Signer) String() string {
	fp := sha256.Sum256(s.pub)
	return fmt.Sprintf("%s:%x", s.identity, fp[:6])
}
