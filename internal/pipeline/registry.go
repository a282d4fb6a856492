package pipeline

import (
	"sync"

	"cosmossdk.io/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrNotFound = errors.Register("pipeline", 1, "approved pipeline not found")
	ErrDuplicate = errors.Register("pipeline", 2, "approved pipeline already registered")
)

// Approved is a named, Verifier-blessed query template (spec.md §3). Stages
// is the MongoDB aggregation pipeline itself: an ordered list of stage
// documents.
type Approved struct {
	Name   string
	Stages bson.A
}

// Canonical returns the canonical byte encoding of this pipeline's current
// Stages. Every execution binds against the template currently fetched by
// name (spec.md §3); callers must re-derive Canonical() from the live
// registry entry, never cache it across a request boundary, or a template
// mutated between fetch and execute (spec.md §8 boundary case) would not be
// caught.
func (a *Approved) Canonical() (string, error) {
	return CanonicalString(a.Stages)
}

// Registry is the Verifier-controlled approved-pipeline store. Mutation is
// out-of-band administrative (spec.md §3 "Lifecycle") — not part of this
// protocol core — so Registry only exposes read access plus a Register/Set
// pair for the seeding tool and tests.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]*Approved
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Approved)}
}

// Register adds a new approved pipeline. It fails if name is already taken;
// use Set to update an existing entry in place (the administrative path).
func (r *Registry) Register(name string, stages bson.A) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return ErrDuplicate.Wrapf("pipeline %q", name)
	}
	r.byName[name] = &Approved{Name: name, Stages: stages}
	return nil
}

// Set registers or replaces an approved pipeline by name.
func (r *Registry) Set(name string, stages bson.A) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = &Approved{Name: name, Stages: stages}
}

// Get fetches the current approved pipeline by name. The returned *Approved
// aliases the registry's live Stages; callers must not mutate it.
func (r *Registry) Get(name string) (*Approved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound.Wrapf("pipeline %q", name)
	}
	return p, nil
}

// Names lists every registered pipeline name, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	return out
}
