package noncestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreIssueThenConsume(t *testing.T) {
	s := NewMemoryStore(DefaultExpiration)
	ctx := context.Background()

	nonce, err := s.Issue(ctx)
	require.NoError(t, err)
	require.Len(t, nonce, NonceLength)

	require.NoError(t, s.Consume(ctx, nonce))
}

func TestMemoryStoreRejectsReplay(t *testing.T) {
	s := NewMemoryStore(DefaultExpiration)
	ctx := context.Background()

	nonce, err := s.Issue(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Consume(ctx, nonce))

	err = s.Consume(ctx, nonce)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsExpired(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	nonce, err := s.Issue(ctx)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	err = s.Consume(ctx, nonce)
	require.ErrorIs(t, err, ErrExpired)
}

func TestMemoryStoreRejectsUnknownNonce(t *testing.T) {
	s := NewMemoryStore(DefaultExpiration)
	err := s.Consume(context.Background(), []byte("not-a-real-nonce-at-all!"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSweepRemovesOnlyExpired(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	_, err := s.Issue(ctx)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	fresh, err := s.Issue(ctx)
	require.NoError(t, err)

	removed := s.Sweep()
	require.Equal(t, 1, removed)
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.Consume(ctx, fresh))
}
