package pi

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

var errVerifierReject = errors.Register("pi", 11, "Verifier rejected request")

// WireVerifierClient drives VerifierClient over an established wire.Conn
// to a Verifier process.
type WireVerifierClient struct {
	conn        *wire.Conn
	verifierPub ed25519.PublicKey
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
		return nil, errVerifierReject.Wrap(reply.Error)
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
		return nil, errVerifierReject.Wrap(reply.Error)
	}
	return signing.DecodeAttestation(c.verifierPub, reply.Attestation, time.Now())
}
