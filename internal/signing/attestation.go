package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"time"
)

// AttestationPayload is the signed content of spec.md §3 "Attestation
// token": `{ expiration, source_code_claim, loaded_pipeline_claim }`.
// Field order here is the canonical order — encoding/json preserves struct
// field declaration order for compact marshaling, which is what both ends
// of the protocol must agree on (spec.md §6).
type AttestationPayload struct {
	Expiration          int64  `json:"expiration"`
	SourceCodeClaim     string `json:"source_code_claim"`
	LoadedPipelineClaim string `json:"loaded_pipeline_claim"`
}

// CanonicalBytes returns the compact, deterministic JSON encoding signed and
// verified for this payload.
func (p AttestationPayload) CanonicalBytes() ([]byte, error) {
	return json.Marshal(p)
}

// Expired reports whether the payload's expiration has passed as of now.
func (p AttestationPayload) Expired(now time.Time) bool {
	return now.Unix() > p.Expiration
}

// SignedAttestation is the opaque token handed to clients: the payload plus
// the Verifier's signature over its canonical bytes. Clients treat it as
// opaque bytes until verified (spec.md §3).
type SignedAttestation struct {
	Payload   AttestationPayload `json:"payload"`
	Signature string             `json:"signature"`
}

// SignAttestation builds and signs a SignedAttestation for the given payload.
func (s *Signer) SignAttestation(payload AttestationPayload) (*SignedAttestation, error) {
	b, err := payload.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	return &SignedAttestation{
		Payload:   payload,
		Signature: s.Sign(b),
	}, nil
}

// Encode renders a SignedAttestation as the base64 blob carried in the
// `attestation` wire field.
func (a *SignedAttestation) Encode() (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeAttestation parses and verifies a base64 attestation blob against
// the Verifier's public key, rejecting expired or malformed tokens.
func DecodeAttestation(verifierPub ed25519.PublicKey, blob string, now time.Time) (*SignedAttestation, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, ErrInvalidSignature.Wrapf("bad base64: %v", err)
	}
	var a SignedAttestation
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, ErrInvalidSignature.Wrapf("malformed attestation: %v", err)
	}
	canon, err := a.Payload.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	if err := Verify(verifierPub, canon, a.Signature); err != nil {
		return nil, err
	}
	if a.Payload.Expired(now) {
		return nil, ErrInvalidSignature.Wrap("attestation token expired")
	}
	return &a, nil
}

// SignResult signs arbitrary canonicalized result bytes, e.g. the bound
// query's output, with this component's key (DAP §4.2 step 8, PI §4.3).
func (s *Signer) SignResult(result []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(result) + "." + s.Sign(result), nil
}

// VerifyResult splits and verifies a "<b64 result>.<b64 signature>" blob
// produced by SignResult, returning the raw result bytes.
func VerifyResult(pub ed25519.PublicKey, blob string) ([]byte, error) {
	sep := -1
	for i := len(blob) - 1; i >= 0; i-- {
		if blob[i] == '.' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return nil, ErrInvalidSignature.Wrap("malformed signed result")
	}
	resultB64, sigB64 := blob[:sep], blob[sep+1:]
	result, err := base64.StdEncoding.DecodeString(resultB64)
	if err != nil {
		return nil, ErrInvalidSignature.Wrapf("bad result encoding: %v", err)
	}
	if err := Verify(pub, result, sigB64); err != nil {
		return nil, err
	}
	return result, nil
}
