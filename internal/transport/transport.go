// Package transport provides the mutually-authenticated TLS dial/listen
// helpers every channel in the protocol runs over (spec.md §6, §9
// "TLS 1.3 with mutual certificate authentication on every channel").
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// MaxDialAttempts bounds connection retry per spec.md §5's "~30 attempts".
const MaxDialAttempts = 30

// TLSConfig describes the material needed to build a mutual-auth TLS config
// for either side of a channel.
type TLSConfig struct {
	CertFile   string
	KeyFile    string
	ClientCAFile string // for a listener: CAs the listener trusts for client certs
	ServerName string // for a dialer: expected server name
}

func (c TLSConfig) buildBase() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	pool := x509.NewCertPool()
	if c.ClientCAFile != "" {
		pem, err := os.ReadFile(c.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", c.ClientCAFile)
		}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		RootCAs:      pool,
		ClientCAs:    pool,
	}, nil
}

// Listen builds a TLS listener requiring and verifying a client
// certificate on every accepted connection.
func Listen(addr string, cfg TLSConfig) (net.Listener, error) {
	base, err := cfg.buildBase()
	if err != nil {
		return nil, err
	}
	base.ClientAuth = tls.RequireAndVerifyClientCert
	return tls.Listen("tcp", addr, base)
}

// RateLimitedListener wraps a net.Listener so Accept blocks under a token
// bucket, bounding how fast a single process will spin up new per-connection
// goroutines against a flood of TLS handshakes (the teacher throttles its
// Waldur ingest worker the same way, via golang.org/x/time/rate).
type RateLimitedListener struct {
	net.Listener
	limiter *rate.Limiter
}

// NewRateLimitedListener wraps ln with a limiter allowing up to burst
// immediate accepts and refilling at perSecond connections/sec thereafter.
func NewRateLimitedListener(ln net.Listener, perSecond float64, burst int) *RateLimitedListener {
	return &RateLimitedListener{Listener: ln, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *RateLimitedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := l.limiter.Wait(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Dial connects to addr with exponential backoff bounded by MaxDialAttempts,
// the pattern grounded on the teacher's hardware-attestation client dial
// loop (SPEC_FULL.md §1).
func Dial(ctx context.Context, addr string, cfg TLSConfig, log zerolog.Logger) (net.Conn, error) {
	base, err := cfg.buildBase()
	if err != nil {
		return nil, err
	}
	base.ServerName = cfg.ServerName

	var lastErr error
	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for attempt := 1; attempt <= MaxDialAttempts; attempt++ {
		dialer := &tls.Dialer{Config: base}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Str("addr", addr).Msg("dial failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, fmt.Errorf("dial %s: exhausted %d attempts: %w", addr, MaxDialAttempts, lastErr)
}
