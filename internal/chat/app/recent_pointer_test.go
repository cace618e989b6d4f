package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUpdatePointer_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConversationRepository)
	repo.On("UpdateRecentMessage", ctx, "c1", "m1").Return(nil).Twice()

	u := NewRecentPointerUpdater(repo, nil)
	require.NoError(t, u.UpdatePointer(ctx, "c1", "m1"))
	require.NoError(t, u.UpdatePointer(ctx, "c1", "m1"))
	repo.AssertExpectations(t)
}

func TestUpdatePointer_Errors(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConversationRepository)
	repo.On("UpdateRecentMessage", ctx, "c1", "m1").Return(errors.New("write rejected"))

	u := NewRecentPointerUpdater(repo, nil)
	assert.ErrorIs(t, u.UpdatePointer(ctx, "c1", "m1"), domain.ErrPersistence)
	assert.ErrorIs(t, u.UpdatePointer(ctx, "", "m1"), domain.ErrValidation)
}

func TestSchedule_FailureBecomesWarning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := new(MockConversationRepository)
	repo.On("UpdateRecentMessage", mock.Anything, "c1", "m1").Return(errors.New("write rejected"))

	var mu sync.Mutex
	var warnings []domain.Warning
	u := NewRecentPointerUpdater(repo, func(w domain.Warning) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, w)
	})

	u.Schedule(ctx, "c1", "m1")
	// caller 取消不影響已送出的更新
	cancel()
	u.Wait()

	require.Len(t, warnings, 1)
	assert.Equal(t, "update_pointer", warnings[0].Op)
	assert.Equal(t, "c1", warnings[0].ConversationID)
	assert.ErrorIs(t, warnings[0].Err, domain.ErrPersistence)
	repo.AssertExpectations(t)
}

func TestScheduleWith_UsesCallHandler(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConversationRepository)
	repo.On("UpdateRecentMessage", mock.Anything, "c1", "m1").Return(errors.New("write rejected"))

	var mu sync.Mutex
	var base, call []string
	u := NewRecentPointerUpdater(repo, func(w domain.Warning) {
		mu.Lock()
		defer mu.Unlock()
		base = append(base, w.Op)
	})

	u.ScheduleWith(ctx, "c1", "m1", func(w domain.Warning) {
		mu.Lock()
		defer mu.Unlock()
		call = append(call, w.MessageID)
	})
	u.Wait()

	assert.Empty(t, base)
	assert.Equal(t, []string{"m1"}, call)
}
