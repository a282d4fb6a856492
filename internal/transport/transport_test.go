package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimitedListenerAcceptsConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	rl := NewRateLimitedListener(ln, 1000, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			c, err := net.Dial("tcp", ln.Addr().String())
			if err == nil {
				c.Close()
			}
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()

	for i := 0; i < 3; i++ {
		conn, err := rl.Accept()
		require.NoError(t, err)
		conn.Close()
	}
	<-done
}
