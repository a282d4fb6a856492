package dap

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"

	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/signing"
	"github.com/virtengine/vericare/internal/wire"
)

// Serve accepts connections on ln and handles each on its own goroutine
// until ctx is cancelled (spec.md §5 "Each ... is a long-running process
// that accepts multiple mutually-authenticated channels ... parallel
// workers; a single request is processed sequentially end-to-end").
func (d *DAP) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go d.handleConn(ctx, nc)
	}
}

func (d *DAP) handleConn(ctx context.Context, nc net.Conn) {
	conn := wire.NewConn(nc)
	defer conn.CloseQuiet()

	peerIdentity := peerIdentityOf(nc)

	for {
		env, err := conn.Recv()
		if err != nil {
			return
		}
		if env.IsClose() {
			conn.Close()
			return
		}

		switch env.Route {
		case wire.RouteEvidence:
			d.replyEvidence(ctx, conn, env)
		default:
			reply := d.HandleQuery(ctx, env, d.requestCallerEvidenceOver(conn, peerIdentity))
			if err := conn.Send(reply); err != nil {
				return
			}
		}
	}
}

func (d *DAP) replyEvidence(ctx context.Context, conn *wire.Conn, env wire.Envelope) {
	nonceBytes, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		conn.Send(wire.ErrorReply(wire.KindProtocol))
		return
	}
	sourceClaim, pipelineClaim, freshNonce, quote, err := d.HandleEvidenceRequest(ctx, nonceBytes, env.QueryName)
	if err != nil {
		conn.Send(wire.ErrorReply(wire.KindProtocol))
		return
	}
	reply := wire.Envelope{
		SourceCodeClaim:     sourceClaim,
		LoadedPipelineClaim: pipelineClaim,
		ReceivedNonce:       env.Nonce,
		RequestedNonce:      base64.StdEncoding.EncodeToString(freshNonce),
	}
	if quote.Platform != "" && quote.Platform != hwattest.PlatformNone {
		reply.HWPlatform = string(quote.Platform)
		reply.HWQuote = base64.StdEncoding.EncodeToString(quote.Raw)
	}
	conn.Send(reply)
}

// requestCallerEvidenceOver builds the closure HandleQuery invokes when the
// release policy requires attesting the caller and no prior peer
// attestation already covers it (spec.md §4.2 step 7's
// AWAIT_CALLER_EVIDENCE state). It issues a nonce of its own, asks the
// connected peer for evidence over the same channel, and attests the reply
// via the Verifier. A plain Client has no evidence protocol to answer with
// and is expected to fail this exchange (spec.md §8 scenario 3); a
// connecting PI identifies itself via its TLS client certificate, which is
// the peer identity passed to the Verifier.
func (d *DAP) requestCallerEvidenceOver(conn *wire.Conn, peerIdentity string) func(ctx context.Context) (string, *signing.SignedAttestation, error) {
	return func(ctx context.Context) (string, *signing.SignedAttestation, error) {
		nonce, err := d.nonces.Issue(ctx)
		if err != nil {
			return peerIdentity, nil, err
		}
		nonceB64 := base64.StdEncoding.EncodeToString(nonce)

		if err := conn.Send(wire.EvidenceRequest(nonceB64, "")); err != nil {
			return peerIdentity, nil, err
		}
		reply, err := conn.Recv()
		if err != nil {
			return peerIdentity, nil, err
		}
		if reply.IsError() || reply.SourceCodeClaim == "" || reply.LoadedPipelineClaim == "" {
			return peerIdentity, nil, ErrCallerAttestation
		}

		var quote hwattest.Quote
		if reply.HWPlatform != "" {
			raw, err := base64.StdEncoding.DecodeString(reply.HWQuote)
			if err != nil {
				return peerIdentity, nil, ErrCallerAttestation
			}
			quote = hwattest.Quote{Platform: hwattest.Platform(reply.HWPlatform), Raw: raw}
		}

		att, err := d.verifierClient.RequestAttestation(ctx, reply.SourceCodeClaim, reply.LoadedPipelineClaim, nonce, "", peerIdentity, quote)
		if err != nil {
			return peerIdentity, nil, err
		}
		return peerIdentity, att, nil
	}
}

// peerIdentityOf extracts a stable peer identity from the connection's TLS
// client certificate common name, falling back to "client" for a
// connection that never presented one (never expected once mutual TLS is
// enforced at the listener, but handled defensively for tests that dial
// over a plain net.Pipe).
func peerIdentityOf(nc net.Conn) string {
	tc, ok := nc.(*tls.Conn)
	if !ok {
		return "client"
	}
	state := tc.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return "client"
	}
	if cn := state.PeerCertificates[0].Subject.CommonName; cn != "" {
		return cn
	}
	return "client"
}
