package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// maxFrameSize bounds a single JSON line to guard against a misbehaving peer
// flooding the connection before a frame boundary is ever seen.
const maxFrameSize = 4 << 20 // 4 MiB

// Conn wraps a mutually-authenticated net.Conn (expected to already be a
// *tls.Conn that has completed its handshake) with the line-delimited JSON
// framing of §6. One Conn is used for exactly one request's end-to-end
// exchange; components open a new Conn per request.
type Conn struct {
	nc      net.Conn
	scanner *bufio.Scanner
}

// NewConn wraps nc for envelope-level reads and writes.
func NewConn(nc net.Conn) *Conn {
	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Conn{nc: nc, scanner: scanner}
}

// SetDeadline forwards to the underlying connection. Nothing in this
// repository calls it, so Send and Recv block until the peer writes or the
// connection closes.
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }

// Send writes one envelope as a single newline-terminated JSON frame and
// flushes it.
func (c *Conn) Send(e Envelope) error {
	b, err := e.MarshalCompact()
	if err != nil {
		return fmt.Errorf("wire: marshal envelope: %w", err)
	}
	if _, err := c.nc.Write(b); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// Recv blocks for the next newline-delimited frame and decodes it.
func (c *Conn) Recv() (Envelope, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Envelope{}, fmt.Errorf("wire: read frame: %w", err)
		}
		return Envelope{}, fmt.Errorf("wire: connection closed before a frame was received")
	}
	var e Envelope
	if err := json.Unmarshal(c.scanner.Bytes(), &e); err != nil {
		return Envelope{}, fmt.Errorf("wire: malformed frame: %w", err)
	}
	return e, nil
}

// Close sends a close handshake best-effort, then releases the transport.
// Every connection, whether closed cleanly or via fault, must release its
// underlying transport (spec.md §5 "Resource discipline").
func (c *Conn) Close() error {
	_ = c.Send(CloseMessage())
	return c.nc.Close()
}

// CloseQuiet releases the transport without attempting a close handshake,
// for use on the fault path where the peer is already known to be gone.
func (c *Conn) CloseQuiet() error {
	return c.nc.Close()
}
