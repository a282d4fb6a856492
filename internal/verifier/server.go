package verifier

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"

	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/wire"
)

// Serve accepts Verifier connections on ln and handles each on its own
// goroutine until ctx is cancelled (spec.md §4.1 "Concurrency": "Verifier
// serves Client and PI connections in parallel").
func (v *Verifier) Serve(ctx context.Context, ln net.Listener) error {
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
		go v.handleConn(ctx, nc)
	}
}

func (v *Verifier) handleConn(ctx context.Context, nc net.Conn) {
	conn := wire.NewConn(nc)
	defer conn.CloseQuiet()

	peer := peerIdentityOf(nc)

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
		case wire.RouteNonce:
			v.replyNonce(ctx, conn)
		case wire.RouteAttestation:
			v.replyAttestation(ctx, conn, env, peer)
		default:
			conn.Send(wire.ErrorReply(wire.KindProtocol))
		}
	}
}

func (v *Verifier) replyNonce(ctx context.Context, conn *wire.Conn) {
	nonce, err := v.RequestNonce(ctx)
	if err != nil {
		conn.Send(wire.ErrorReply(wire.KindNonce))
		return
	}
	conn.Send(wire.Envelope{Nonce: base64.StdEncoding.EncodeToString(nonce)})
}

func (v *Verifier) replyAttestation(ctx context.Context, conn *wire.Conn, env wire.Envelope, peer string) {
	nonceBytes, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		conn.Send(wire.ErrorReply(wire.KindProtocol))
		return
	}
	var quote hwattest.Quote
	if env.HWPlatform != "" {
		raw, err := base64.StdEncoding.DecodeString(env.HWQuote)
		if err != nil {
			conn.Send(wire.ErrorReply(wire.KindProtocol))
			return
		}
		quote = hwattest.Quote{Platform: hwattest.Platform(env.HWPlatform), Raw: raw}
	}
	att, err := v.RequestAttestation(ctx, env.SourceCodeClaim, env.LoadedPipelineClaim, nonceBytes, env.QueryName, peer, quote)
	if err != nil {
		conn.Send(wire.ErrorReply(wire.KindAttestation))
		return
	}
	encoded, err := att.Encode()
	if err != nil {
		conn.Send(wire.ErrorReply(wire.KindAttestation))
		return
	}
	conn.Send(wire.Envelope{Attestation: encoded})
}

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
