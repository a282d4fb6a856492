package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func fixedLookup(id bson.ObjectID, username, hash string) Lookup {
	return func(_ context.Context, u string) (bson.M, error) {
		if u != username {
			return nil, nil
		}
		return bson.M{"_id": id, "username": username, "passwordHash": hash}, nil
	}
}

func TestAuthenticateAcceptsCorrectPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	id := bson.NewObjectID()

	authr := NewAuthenticator(fixedLookup(id, "doctor", hash))
	got, err := authr.Authenticate(context.Background(), "doctor", "correct horse")
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	authr := NewAuthenticator(fixedLookup(bson.NewObjectID(), "doctor", hash))
	_, err = authr.Authenticate(context.Background(), "doctor", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateRejectsUnknownUser(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	authr := NewAuthenticator(fixedLookup(bson.NewObjectID(), "doctor", hash))
	_, err = authr.Authenticate(context.Background(), "nobody", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateRejectsLookupError(t *testing.T) {
	authr := NewAuthenticator(func(context.Context, string) (bson.M, error) {
		return nil, ErrInvalidCredentials
	})
	_, err := authr.Authenticate(context.Background(), "doctor", "anything")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
