package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryCache_GetPutInvalidate(t *testing.T) {
	c := NewDirectoryCache()

	_, ok := c.Get("u1")
	assert.False(t, ok)

	c.Put("u1", domain.DirectoryEntry{ID: "u1", FirstName: "Ann"})
	e, ok := c.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "Ann", e.FirstName)

	c.InvalidateAll()
	_, ok = c.Get("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestDirectoryCache_ConcurrentAccess(t *testing.T) {
	c := NewDirectoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i%5)
			c.Put(id, domain.DirectoryEntry{ID: id})
			c.Get(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.Len())
}

func TestDirectory_GetReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDirectoryRepository)
	repo.On("FindByID", ctx, "u1").Return(&domain.DirectoryEntry{ID: "u1", FirstName: "Ann"}, nil).Once()

	d := NewDirectory(repo, NewDirectoryCache())
	e, err := d.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", e.DisplayName())

	// 第二次從 cache 取得
	_, err = d.Get(ctx, "u1")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestDirectory_GetNotFound(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDirectoryRepository)
	repo.On("FindByID", ctx, "ghost").Return(nil, fmt.Errorf("%w: user ghost", domain.ErrNotFound))

	cache := NewDirectoryCache()
	_, err := NewDirectory(repo, cache).Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, cache.Len())
}

func TestDirectory_ListFillsCache(t *testing.T) {
	ctx := context.Background()
	repo := new(MockDirectoryRepository)
	repo.On("FindAll", ctx).Return([]domain.DirectoryEntry{{ID: "u1"}, {ID: "u2"}}, nil)

	cache := NewDirectoryCache()
	entries, err := NewDirectory(repo, cache).List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, cache.Len())

	failing := new(MockDirectoryRepository)
	failing.On("FindAll", ctx).Return(nil, errors.New("db down"))
	_, err = NewDirectory(failing, cache).List(ctx)
	assert.Error(t, err)
}
