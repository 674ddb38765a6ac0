package storage

import (
	"context"
	"path/filepath"
	"testing"

	"secret-santa-bot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "santa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_Contract(t *testing.T) {
	testStorageContract(t, func(t *testing.T) domain.Storage {
		return newTestSQLite(t)
	})
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "santa.db")

	s1, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s1.SaveParticipant(ctx, 1, "Alice"))
	require.NoError(t, s1.ReplaceAssignments(ctx, []domain.Assignment{{GiverID: 1, ReceiverID: 2}}))
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(path)
	require.NoError(t, err)
	defer s2.Close()

	p, err := s2.GetParticipant(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "", p.Wish)

	got, err := s2.GetAllAssignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 2}, got)
}

func TestSQLite_ReplaceAssignmentsIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.ReplaceAssignments(ctx, []domain.Assignment{{GiverID: 1, ReceiverID: 2}}))

	// duplicate giver violates the primary key; the previous draw must survive
	err := s.ReplaceAssignments(ctx, []domain.Assignment{
		{GiverID: 3, ReceiverID: 4},
		{GiverID: 3, ReceiverID: 5},
	})
	require.Error(t, err)

	got, err := s.GetAllAssignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 2}, got)
}
