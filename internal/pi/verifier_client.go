package pi

import (
	"context"

	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/signing"
)

// VerifierClient is the PI's view of the Verifier, identical in shape to
// the DAP's (spec.md §4.1); kept as its own interface so this package does
// not depend on internal/dap. quote carries an optional hardware
// attestation quote alongside the Ed25519 claims; pass the zero value when
// the peer has none.
type VerifierClient interface {
	RequestNonce(ctx context.Context) ([]byte, error)
	RequestAttestation(ctx context.Context, sourceClaim, pipelineClaim string, nonce []byte, pipelineName, peer string, quote hwattest.Quote) (*signing.SignedAttestation, error)
}

// DAPClient is the PI's view of a DAP connection: request evidence, then
// send the real query carrying PI's own claims. quote mirrors the
// hardware-evidence supplement carried on the wire envelope.
type DAPClient interface {
	RequestEvidence(ctx context.Context, nonce []byte, queryName string) (sourceClaim, pipelineClaim, receivedNonce, requestedNonce string, quote hwattest.Quote, err error)
	SendQuery(ctx context.Context, route, username, password string, params map[string]any, sourceClaim, pipelineClaim, nonce string, quote hwattest.Quote) (signedResult string, err error)
}
