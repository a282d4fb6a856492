// Package auth authenticates the username/password pair a caller presents
// alongside a query request (spec.md §4.2 step 3). It never participates in
// attestation or authorization — only "is this credential valid."
package auth

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

// userRecord is the shape of a document in the "users" collection.
type userRecord struct {
	ID           bson.ObjectID `bson:"_id"`
	Username     string        `bson:"username"`
	PasswordHash string        `bson:"passwordHash"`
}

// Lookup fetches a raw user document by username. internal/store.Store's
// Aggregate is the only read primitive exposed to protocol code, so
// Authenticator takes a narrower function instead of depending on the full
// store interface.
type Lookup func(ctx context.Context, username string) (bson.M, error)

type Authenticator struct {
	lookup Lookup
}

func NewAuthenticator(lookup Lookup) *Authenticator {
	return &Authenticator{lookup: lookup}
}

// Authenticate returns the authenticated user's object id, or
// ErrInvalidCredentials for any failure — unknown username, decode failure,
// or password mismatch are all folded into the same error so a caller
// cannot distinguish "no such user" from "wrong password" (spec.md §7
// "Authentication failures are opaque to the caller").
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (bson.ObjectID, error) {
	raw, err := a.lookup(ctx, username)
	if err != nil || raw == nil {
		return bson.ObjectID{}, ErrInvalidCredentials
	}

	hash, _ := raw["passwordHash"].(string)
	id, ok := raw["_id"].(bson.ObjectID)
	if hash == "" || !ok {
		return bson.ObjectID{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return bson.ObjectID{}, ErrInvalidCredentials
	}
	return id, nil
}

// HashPassword produces the bcrypt hash stored in a user document; used by
// cmd/seed, never by the live authentication path.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", ErrHashFailed.Wrap(err.Error())
	}
	return string(h), nil
}
