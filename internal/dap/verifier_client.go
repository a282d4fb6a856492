package dap

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"time"

	"cosmossdk.io/errors"

	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/signing"
	"github.com/virtengine/vericare/internal/wire"
)

// VerifierClient is the DAP's view of the Verifier (spec.md §4.1's two
// operations, from the caller side). A wire.Conn-backed implementation
// talks to a real Verifier process; tests may substitute an in-process
// adapter wrapping *verifier.Verifier directly. quote carries an optional
// hardware attestation quote alongside the Ed25519 claims; pass the zero
// value when the peer has none.
type VerifierClient interface {
	RequestNonce(ctx context.Context) ([]byte, error)
	RequestAttestation(ctx context.Context, sourceClaim, pipelineClaim string, nonce []byte, pipelineName, peer string, quote hwattest.Quote) (*signing.SignedAttestation, error)
}

var errWireReject = errors.Register("dap", 10, "verifier rejected request")

// WireVerifierClient drives a VerifierClient over an established
// wire.Conn to a Verifier process, verifying attestation responses under
// the Verifier's known public key.
type WireVerifierClient struct {
	conn         *wire.Conn
	verifierPub  ed25519.PublicKey
}

func NewWireVerifierClient(conn *wire.Conn, verifierPub ed25519.PublicKey) *WireVerifierClient {
	return &WireVerifierClient{conn: conn, verifierPub: verifierPub}
}

func (c *WireVerifierClient) RequestNonce(ctx context.Context) ([]byte, error) {
	if err := c.conn.Send(wire.NonceRequest()); err != nil {
		return nil, err
	}
	reply, err := c.conn.Recv()
	if err != nil {
		return nil, err
	}
	if reply.IsError() {
		return nil, errWireReject.Wrap(reply.Error)
	}
	return base64.StdEncoding.DecodeString(reply.Nonce)
}

func (c *WireVerifierClient) RequestAttestation(ctx context.Context, sourceClaim, pipelineClaim string, nonce []byte, pipelineName, peer string, quote hwattest.Quote) (*signing.SignedAttestation, error) {
	req := wire.AttestationRequest(sourceClaim, pipelineClaim, base64.StdEncoding.EncodeToString(nonce), pipelineName,
		string(quote.Platform), base64.StdEncoding.EncodeToString(quote.Raw))
	if err := c.conn.Send(req); err != nil {
		return nil, err
	}
	reply, err := c.conn.Recv()
	if err != nil {
		return nil, err
	}
	if reply.IsError() {
		return nil, errWireReject.Wrap(reply.Error)
	}
	return signing.DecodeAttestation(c.verifierPub, reply.Attestation, time.Now())
}
