package app

import (
	"context"
	"sync"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// WarningHandler receives non-fatal failures that happened next to a successful operation
type WarningHandler func(w domain.Warning)

// LogWarning default WarningHandler
func LogWarning(w domain.Warning) {
	logger.Log.Warn("chat engine warning",
		zap.String("op", w.Op),
		zap.String("conversation_id", w.ConversationID),
		zap.String("message_id", w.MessageID),
		zap.Strings("removed_ids", w.RemovedIDs),
		zap.Error(w.Err),
	)
}

// RecentPointerUpdater keeps a conversation's recent_message_id pointing at the latest sent message.
// Updates are not ordered against each other, the last write to land wins.
type RecentPointerUpdater struct {
	repo    repository.ConversationRepository
	onWarn  WarningHandler
	pending sync.WaitGroup
}

// NewRecentPointerUpdater create updater
func NewRecentPointerUpdater(repo repository.ConversationRepository, onWarn WarningHandler) *RecentPointerUpdater {
	if onWarn == nil {
		onWarn = LogWarning
	}
	return &RecentPointerUpdater{repo: repo, onWarn: onWarn}
}

// UpdatePointer set recent_message_id, writing the same id again changes nothing
func (u *RecentPointerUpdater) UpdatePointer(ctx context.Context, conversationID, messageID string) error {
	if conversationID == "" || messageID == "" {
		return errprocess.Wrap(domain.ErrValidation, "conversation id and message id are required")
	}
	if err := u.repo.UpdateRecentMessage(ctx, conversationID, messageID); err != nil {
		return errprocess.WrapErr(domain.ErrPersistence, "update recent message pointer", err,
			zap.String("conversation_id", conversationID), zap.String("message_id", messageID))
	}
	return nil
}

// Schedule run UpdatePointer in the background. The caller's cancellation does not stop it,
// a failure is reported through the updater's warning handler.
func (u *RecentPointerUpdater) Schedule(ctx context.Context, conversationID, messageID string) {
	u.ScheduleWith(ctx, conversationID, messageID, u.onWarn)
}

// ScheduleWith like Schedule, a failure goes to onWarn (nil uses the updater's handler)
func (u *RecentPointerUpdater) ScheduleWith(ctx context.Context, conversationID, messageID string, onWarn WarningHandler) {
	if onWarn == nil {
		onWarn = u.onWarn
	}
	ctx = context.WithoutCancel(ctx)
	u.pending.Add(1)
	go func() {
		defer u.pending.Done()
		if err := u.UpdatePointer(ctx, conversationID, messageID); err != nil {
			onWarn(domain.Warning{Op: "update_pointer", ConversationID: conversationID, MessageID: messageID, Err: err})
		}
	}()
}

// Wait block until every scheduled update finished
func (u *RecentPointerUpdater) Wait() {
	u.pending.Wait()
}
