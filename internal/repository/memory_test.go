package repository

import (
	"context"
	"errors"
	"testing"

	"circle-system/internal/status"
	"circle-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_NestedTxJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(tx Store) error {
		require.NoError(t, tx.RunInTx(ctx, func(inner Store) error {
			return inner.CreateEvent(ctx, &models.Event{ID: "ev1", Name: "Spring"})
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetEvent(ctx, "ev1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestMemoryStore_Authenticate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.CreateAccount(ctx, models.Credentials{Email: "kai@example.com", Password: "open-sesame"})
	require.NoError(t, err)

	acc, err := s.Authenticate(ctx, models.Credentials{Email: " KAI@example.com ", Password: "open-sesame"})
	require.NoError(t, err)
	assert.Equal(t, "kai@example.com", acc.Email)

	_, err = s.Authenticate(ctx, models.Credentials{Email: "kai@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, status.ErrInvalidArgument)

	_, err = s.Authenticate(ctx, models.Credentials{Email: "nobody@example.com", Password: "open-sesame"})
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sp := &models.Space{EventID: "ev1", Name: "A-01", Price: 5000}
	require.NoError(t, s.CreateSpace(ctx, sp))

	got, err := s.GetSpace(ctx, sp.ID)
	require.NoError(t, err)
	got.Price = 1

	again, err := s.GetSpace(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), again.Price)
}
