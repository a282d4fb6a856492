package store

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryStore is a test-only Store that holds documents in process memory
// and evaluates a narrow subset of aggregation stages: $match by field
// equality, $lookup/$unwind by localField/foreignField, $limit, and $project
// with $let/$switch expressions over the fields internal/pipeline actually
// emits. It exists so internal/dap and internal/pi tests can exercise the
// full bind-then-execute path without a live MongoDB instance; it is not a
// general aggregation engine and must never be reached
// by production code.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]bson.M // collection -> hex(_id) -> doc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]bson.M)}
}

func (m *MemoryStore) InsertOne(_ context.Context, collection string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := bson.Marshal(doc)
	if err != nil {
		return ErrExecute.Wrapf("marshal fixture: %v", err)
	}
	var asMap bson.M
	if err := bson.Unmarshal(b, &asMap); err != nil {
		return ErrDecode.Wrapf("unmarshal fixture: %v", err)
	}
	id, ok := asMap["_id"].(bson.ObjectID)
	if !ok {
		return ErrExecute.Wrap("fixture document missing object id _id")
	}
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]bson.M)
	}
	m.collections[collection][id.Hex()] = asMap
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }

// Aggregate evaluates pipeline against collection using the narrow
// interpreter in eval.go.
func (m *MemoryStore) Aggregate(_ context.Context, collection string, pipeline bson.A) ([]bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.allDocs(collection)
	return evalPipeline(docs, pipeline, m.collections)
}

func (m *MemoryStore) allDocs(collection string) []bson.M {
	src := m.collections[collection]
	out := make([]bson.M, 0, len(src))
	for _, d := range src {
		out = append(out, cloneDoc(d))
	}
	return out
}

func cloneDoc(d bson.M) bson.M {
	out := make(bson.M, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
