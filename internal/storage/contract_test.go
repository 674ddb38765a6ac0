package storage

import (
	"context"
	"testing"

	"secret-santa-bot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStorageContract runs the behaviour every backend must share.
func testStorageContract(t *testing.T, newStorage func(t *testing.T) domain.Storage) {
	ctx := context.Background()

	t.Run("upsert keeps one record with latest name", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.SaveParticipant(ctx, 1, "Alice"))
		require.NoError(t, s.SaveParticipant(ctx, 1, "Alice Smith"))

		all, err := s.GetAllParticipants(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "Alice Smith", all[0].Name)
	})

	t.Run("upsert does not touch wish", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.SaveParticipant(ctx, 2, "Bob"))
		require.NoError(t, s.SaveWish(ctx, 2, "warm socks"))
		require.NoError(t, s.SaveParticipant(ctx, 2, "Bobby"))

		p, err := s.GetParticipant(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Bobby", p.Name)
		assert.Equal(t, "warm socks", p.Wish)
	})

	t.Run("unknown participant", func(t *testing.T) {
		s := newStorage(t)
		p, err := s.GetParticipant(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, p)

		assert.ErrorIs(t, s.SaveWish(ctx, 42, "book"), domain.ErrParticipantNotFound)
	})

	t.Run("delete participant", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.SaveParticipant(ctx, 1, "Alice"))
		require.NoError(t, s.SaveParticipant(ctx, 2, "Bob"))
		require.NoError(t, s.DeleteParticipant(ctx, 1))
		require.NoError(t, s.DeleteParticipant(ctx, 99))

		all, err := s.GetAllParticipants(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, int64(2), all[0].UserID)
	})

	t.Run("replace assignments", func(t *testing.T) {
		s := newStorage(t)
		empty, err := s.GetAllAssignments(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		require.NoError(t, s.ReplaceAssignments(ctx, []domain.Assignment{
			{GiverID: 1, ReceiverID: 2},
			{GiverID: 2, ReceiverID: 3},
			{GiverID: 3, ReceiverID: 1},
			{GiverID: 4, ReceiverID: 5},
		}))
		require.NoError(t, s.ReplaceAssignments(ctx, []domain.Assignment{
			{GiverID: 1, ReceiverID: 3},
			{GiverID: 2, ReceiverID: 1},
			{GiverID: 3, ReceiverID: 2},
		}))

		got, err := s.GetAllAssignments(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[int64]int64{1: 3, 2: 1, 3: 2}, got)

		require.NoError(t, s.DeleteAllAssignments(ctx))
		require.NoError(t, s.DeleteAllAssignments(ctx))
		got, err = s.GetAllAssignments(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStorage(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
