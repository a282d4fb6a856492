package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalCompactOmitsEmptyFields(t *testing.T) {
	b, err := NonceRequest().MarshalCompact()
	require.NoError(t, err)
	require.Equal(t, "{\"verb\":\"GET\",\"route\":\"nonce\"}\n", string(b))
}

func TestQueryRequestBuildsGetEnvelope(t *testing.T) {
	env := QueryRequest("get_bp", "patient", "secret", map[string]any{"patient_id": "abc"})
	require.Equal(t, "GET", env.Verb)
	require.Equal(t, "get_bp", env.Route)
	require.False(t, env.IsError())
	require.False(t, env.IsClose())
}

func TestErrorReplyIsError(t *testing.T) {
	env := ErrorReply(KindAuth)
	require.True(t, env.IsError())
	require.Equal(t, KindAuth, env.Error)
}

func TestCloseMessageIsClose(t *testing.T) {
	require.True(t, CloseMessage().IsClose())
}
