// Package buildid resolves spec.md §9's "source-of-own-code introspection"
// design note: a running process cannot honestly read its own source tree
// at evidence time, so the canonical byte image of each attested
// component's source is instead embedded at build time as a constant, and
// the Verifier is configured with the matching image for each peer it
// attests. go:generate (or an equivalent build step, out of scope here)
// is responsible for keeping embed.go's images in sync with the tree that
// produced the binary.
package buildid

import "crypto/sha256"

// Image is the canonical source-byte image of one attested component, as
// embedded at build time.
type Image []byte

// Hash returns sha256(image) — the form both the attested component and
// the Verifier compare against, never the raw image itself, to keep wire
// messages small.
func (i Image) Hash() [32]byte {
	return sha256.Sum256(i)
}

// Registry maps a peer identity (DAP, PI) to the source image the Verifier
// expects it to be running.
type Registry struct {
	images map[string]Image
}

func NewRegistry() *Registry {
	return &Registry{images: make(map[string]Image)}
}

func (r *Registry) Set(identity string, image Image) {
	r.images[identity] = image
}

func (r *Registry) Get(identity string) (Image, bool) {
	img, ok := r.images[identity]
	return img, ok
}
