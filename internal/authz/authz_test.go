package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestGrantHasChecksPermissionAndExpiration(t *testing.T) {
	userID := bson.NewObjectID()
	g := NewGrant(userID, time.Now().Add(time.Hour), PermissionRead)

	require.True(t, g.Has(PermissionRead, time.Now()))
	require.False(t, g.Has(PermissionWrite, time.Now()))
}

func TestGrantHasRejectsExpired(t *testing.T) {
	userID := bson.NewObjectID()
	g := NewGrant(userID, time.Now().Add(-time.Hour), PermissionEnclave)

	require.False(t, g.Has(PermissionEnclave, time.Now()))
}

func TestGrantHasMultiplePermissions(t *testing.T) {
	userID := bson.NewObjectID()
	g := NewGrant(userID, time.Now().Add(time.Hour), PermissionRead, PermissionWrite)

	require.True(t, g.Has(PermissionRead, time.Now()))
	require.True(t, g.Has(PermissionWrite, time.Now()))
	require.False(t, g.Has(PermissionEnclave, time.Now()))
}
