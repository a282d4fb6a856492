package buildid

// DAPImage, PIImage are placeholders for the canonical source-byte images a
// real build pipeline would produce (e.g. via go:generate concatenating and
// hashing the component's own package tree at build time, the way the
// teacher's release tooling stamps a version string into a constant). Until
// that generator exists, callers may override these via
// Registry.Set — the protocol logic never depends on how the image was
// produced, only that the Verifier and the component agree on it.
var (
	DAPImage Image
	PIImage  Image
)
