// Package store abstracts the document collection a bound pipeline executes
// against. spec.md never names a storage engine; the release policy in
// internal/pipeline is written in MongoDB aggregation syntax because that is
// the richest common substrate for embedding a $switch-based policy inside
// the hashed template itself (SPEC_FULL.md §2).
package store

import (
	"context"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Store runs bound aggregation pipelines against a named collection and
// decodes the result set. It is the only component downstream of
// internal/template that touches the pipeline's bound form.
type Store interface {
	// Aggregate runs pipeline (already bound by internal/template.Bind)
	// against collection and returns every resulting document.
	Aggregate(ctx context.Context, collection string, pipeline bson.A) ([]bson.M, error)

	// InsertOne is used only by cmd/seed to populate fixture data; the
	// protocol's read path never writes.
	InsertOne(ctx context.Context, collection string, doc any) error

	Close(ctx context.Context) error
}

// MongoStore is the production Store, backed by a real mongo.Client.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger
}

// Connect dials uri and selects dbName, per the teacher's pattern of a thin
// Connect/Close pair around a long-lived client (SPEC_FULL.md §1).
func Connect(ctx context.Context, uri, dbName string, log zerolog.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, ErrConnect.Wrapf("dial %s: %v", uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, ErrConnect.Wrapf("ping: %v", err)
	}
	return &MongoStore{
		client: client,
		db:     client.Database(dbName),
		log:    log.With().Str("component", "store").Logger(),
	}, nil
}

func (s *MongoStore) Aggregate(ctx context.Context, collection string, pipeline bson.A) ([]bson.M, error) {
	cur, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, ErrExecute.Wrapf("collection %s: %v", collection, err)
	}
	defer cur.Close(ctx)

	var out []bson.M
	if err := cur.All(ctx, &out); err != nil {
		return nil, ErrDecode.Wrapf("collection %s: %v", collection, err)
	}
	return out, nil
}

func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc any) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return ErrExecute.Wrapf("insert into %s: %v", collection, err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
