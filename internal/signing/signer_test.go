package signing

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLog() zerolog.Logger {
	return zerolog.Nop()
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s, err := Generate("dap", testLog())
	require.NoError(t, err)

	msg := []byte("hello")
	sig := s.Sign(msg)
	require.NoError(t, Verify(s.PublicKey(), msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	s, err := Generate("dap", testLog())
	require.NoError(t, err)

	sig := s.Sign([]byte("hello"))
	err = Verify(s.PublicKey(), []byte("goodbye"), sig)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestClaimRoundTrip(t *testing.T) {
	s, err := Generate("dap", testLog())
	require.NoError(t, err)

	artifact := []byte("source bytes")
	nonce := []byte("24-byte-nonce-value-here")
	claim := s.SignClaim(artifact, nonce)
	require.NoError(t, VerifyClaim(s.PublicKey(), artifact, nonce, claim))
}

func TestClaimRejectsWrongNonce(t *testing.T) {
	s, err := Generate("dap", testLog())
	require.NoError(t, err)

	artifact := []byte("source bytes")
	claim := s.SignClaim(artifact, []byte("nonce-one"))
	err = VerifyClaim(s.PublicKey(), artifact, []byte("nonce-two"), claim)
	require.Error(t, err)
}

func TestSignedAttestationEncodeDecodeRoundTrip(t *testing.T) {
	s, err := Generate("verifier", testLog())
	require.NoError(t, err)

	payload := AttestationPayload{
		Expiration:          time.Now().Add(time.Minute).Unix(),
		SourceCodeClaim:     "source-claim",
		LoadedPipelineClaim: "pipeline-claim",
	}
	att, err := s.SignAttestation(payload)
	require.NoError(t, err)

	blob, err := att.Encode()
	require.NoError(t, err)

	decoded, err := DecodeAttestation(s.PublicKey(), blob, time.Now())
	require.NoError(t, err)
	require.Equal(t, payload, decoded.Payload)
}

func TestDecodeAttestationRejectsExpired(t *testing.T) {
	s, err := Generate("verifier", testLog())
	require.NoError(t, err)

	payload := AttestationPayload{Expiration: time.Now().Add(-time.Minute).Unix()}
	att, err := s.SignAttestation(payload)
	require.NoError(t, err)
	blob, err := att.Encode()
	require.NoError(t, err)

	_, err = DecodeAttestation(s.PublicKey(), blob, time.Now())
	require.Error(t, err)
}

func TestSignResultVerifyResultRoundTrip(t *testing.T) {
	s, err := Generate("dap", testLog())
	require.NoError(t, err)

	blob, err := s.SignResult([]byte(`{"value":100}`))
	require.NoError(t, err)

	out, err := VerifyResult(s.PublicKey(), blob)
	require.NoError(t, err)
	require.JSONEq(t, `{"value":100}`, string(out))
}
