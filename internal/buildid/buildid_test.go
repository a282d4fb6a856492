package buildid

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImageHashMatchesSHA256(t *testing.T) {
	img := Image("source bytes")
	want := sha256.Sum256(img)
	require.Equal(t, want, img.Hash())
}

func TestRegistrySetGet(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("dap")
	require.False(t, ok)

	r.Set("dap", Image("dap source"))
	img, ok := r.Get("dap")
	require.True(t, ok)
	require.Equal(t, Image("dap source"), img)
}

func TestRegistrySetOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Set("pi", Image("v1"))
	r.Set("pi", Image("v2"))

	img, ok := r.Get("pi")
	require.True(t, ok)
	require.Equal(t, Image("v2"), img)
}
