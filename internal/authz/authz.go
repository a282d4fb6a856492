// Package authz models the authorization documents the release policy in
// internal/pipeline reads through $lookup — who may read or write a
// patient's data, under what permission tier, until when. These helpers
// exist for cmd/seed and tests; the live protocol path never evaluates
// authorization in Go, only inside the hashed aggregation expression
// itself (spec.md §4.2 closing paragraph).
package authz

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Permission names the access tiers fieldReleaseExpr checks for.
type Permission string

const (
	PermissionRead    Permission = "read"
	PermissionWrite   Permission = "write"
	PermissionEnclave Permission = "enclave"
)

// Grant is one user's standing authorization against a single patient
// record's authorization document.
type Grant struct {
	UserID      bson.ObjectID `bson:"userId"`
	Permissions []Permission  `bson:"permissions"`
	Expiration  int64         `bson:"expiration"` // unix seconds
}

// Document is the authorization collection's per-patient document, joined
// by _id against the owning patient record.
type Document struct {
	ID    bson.ObjectID `bson:"_id"`
	Users []Grant       `bson:"users"`
}

// NewGrant builds a Grant expiring at expiration with the given tiers.
func NewGrant(userID bson.ObjectID, expiration time.Time, perms ...Permission) Grant {
	return Grant{UserID: userID, Permissions: perms, Expiration: expiration.Unix()}
}

// Has reports whether g currently carries perm and has not expired as of
// now — the same rule fieldReleaseExpr evaluates inside the aggregation
// pipeline, duplicated here only for tests that want to assert fixture
// setup without running a pipeline.
func (g Grant) Has(perm Permission, now time.Time) bool {
	if g.Expiration <= now.Unix() {
		return false
	}
	for _, p := range g.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
