package pi

import (
	"context"
	"net"

	"github.com/virtengine/vericare/internal/wire"
)

// FollowUpRoutes maps a client-visible wire route name to the follow-up
// pipeline PI should chain after obtaining the DAP's result, when any
// (spec.md §8 scenario 5's "is_bp_above_mean").
type FollowUpRoutes map[string]string

// Serve accepts Client connections on ln and handles each on its own
// goroutine until ctx is cancelled.
func (p *PI) Serve(ctx context.Context, ln net.Listener, followUpRoutes FollowUpRoutes) error {
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
		go p.handleConn(ctx, nc, followUpRoutes)
	}
}

func (p *PI) handleConn(ctx context.Context, nc net.Conn, followUpRoutes FollowUpRoutes) {
	conn := wire.NewConn(nc)
	defer conn.CloseQuiet()

	for {
		env, err := conn.Recv()
		if err != nil {
			return
		}
		if env.IsClose() {
			conn.Close()
			return
		}

		followUp := followUpRoutes[env.Route]
		signed, err := p.HandleClientQuery(ctx, env.Route, env.Username, env.Password, env.Params, followUp)
		if err != nil {
			conn.Send(wire.ErrorReply(wire.KindProtocol))
			continue
		}
		if err := conn.Send(wire.Envelope{Response: signed}); err != nil {
			return
		}
	}
}
