package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func entries(ids ...string) []domain.DirectoryEntry {
	out := make([]domain.DirectoryEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.DirectoryEntry{ID: id, FirstName: "name-" + id})
	}
	return out
}

func entryIDs(es []domain.DirectoryEntry) []string {
	ids := make([]string, 0, len(es))
	for _, e := range es {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestReconcile_MissingIDReported(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDirectoryRepository)
	// store 回傳順序不一定與 request 相同
	repo.On("FindByIDs", mock.Anything, []string{"u1", "ghost", "u2"}).Return(entries("u2", "u1"), nil)

	cache := NewDirectoryCache()
	r := NewParticipantReconciler(repo, cache, 10)
	found, missing, err := r.Reconcile(ctx, []string{"u1", "ghost", "u2"})

	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, entryIDs(found))
	assert.Equal(t, []string{"ghost"}, missing)
	assert.Equal(t, 2, cache.Len())
	_, cached := cache.Get("ghost")
	assert.False(t, cached)
	repo.AssertExpectations(t)
}

func TestReconcile_ChunksAboveMembershipLimit(t *testing.T) {
	ctx := context.Background()
	ids := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		ids = append(ids, fmt.Sprintf("u%02d", i))
	}

	repo := new(MockDirectoryRepository)
	repo.On("FindByIDs", mock.Anything, ids[0:10]).Return(entries(ids[0:10]...), nil).Once()
	repo.On("FindByIDs", mock.Anything, ids[10:20]).Return(entries(ids[10:19]...), nil).Once()
	repo.On("FindByIDs", mock.Anything, ids[20:25]).Return(entries(ids[20:25]...), nil).Once()

	found, missing, err := NewParticipantReconciler(repo, NewDirectoryCache(), 10).Reconcile(ctx, ids)

	require.NoError(t, err)
	assert.Len(t, found, 24)
	assert.Equal(t, []string{"u19"}, missing)
	assert.Equal(t, ids[:19], entryIDs(found)[:19])
	repo.AssertNumberOfCalls(t, "FindByIDs", 3)
}

func TestReconcile_QueryFailure(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDirectoryRepository)
	repo.On("FindByIDs", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, _, err := NewParticipantReconciler(repo, NewDirectoryCache(), 10).Reconcile(ctx, []string{"u1"})
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestReconcile_EmptyInput(t *testing.T) {
	repo := new(MockDirectoryRepository)
	found, missing, err := NewParticipantReconciler(repo, nil, 10).Reconcile(context.Background(), nil)

	assert.NoError(t, err)
	assert.Empty(t, found)
	assert.Empty(t, missing)
	repo.AssertNotCalled(t, "FindByIDs", mock.Anything, mock.Anything)
}
