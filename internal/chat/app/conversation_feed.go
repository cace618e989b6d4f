package app

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
)

// ConversationFeed conversation list of one user, newest first
type ConversationFeed struct {
	userID  string
	sub     repository.Subscription[domain.Conversation]
	updates chan domain.FeedUpdate
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	err     error

	byID map[string]domain.Conversation
}

// OpenConversationFeed subscribe to the conversations userID participates in
func OpenConversationFeed(ctx context.Context, repo repository.ConversationRepository, userID string, buffer int) (*ConversationFeed, error) {
	sub, err := repo.WatchByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe conversations of %s: %w", domain.ErrStream, userID, err)
	}
	return NewConversationFeed(userID, sub, buffer), nil
}

// NewConversationFeed start consuming sub
func NewConversationFeed(userID string, sub repository.Subscription[domain.Conversation], buffer int) *ConversationFeed {
	if buffer <= 0 {
		buffer = 1
	}
	f := &ConversationFeed{
		userID:  userID,
		sub:     sub,
		updates: make(chan domain.FeedUpdate, buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		byID:    make(map[string]domain.Conversation),
	}
	go f.run()
	return f
}

// Key registry key
func (f *ConversationFeed) Key() string {
	return ConversationsKey(f.userID)
}

// Updates conversation list snapshots
func (f *ConversationFeed) Updates() <-chan domain.FeedUpdate {
	return f.updates
}

// Release stop delivery
func (f *ConversationFeed) Release() error {
	f.once.Do(func() {
		close(f.stop)
		f.err = f.sub.Close()
		<-f.done
	})
	return f.err
}

func (f *ConversationFeed) run() {
	defer close(f.done)
	defer close(f.updates)

	for {
		select {
		case batch, ok := <-f.sub.Changes():
			if !ok {
				if err := f.sub.Err(); err != nil {
					f.emit(domain.FeedUpdate{
						UserID: f.userID,
						Err:    fmt.Errorf("%w: conversations of %s: %w", domain.ErrStream, f.userID, err),
					})
				}
				return
			}
			for _, ch := range batch {
				switch {
				case ch.Type == domain.ChangeRemoved:
					delete(f.byID, ch.ID)
				case ch.Doc != nil && ch.Doc.HasParticipant(f.userID):
					f.byID[ch.ID] = *ch.Doc
				case ch.Doc != nil:
					// 已被移出 participant
					delete(f.byID, ch.ID)
				}
			}
			if !f.emit(domain.FeedUpdate{UserID: f.userID, Conversations: f.sorted()}) {
				return
			}
		case <-f.stop:
			return
		}
	}
}

func (f *ConversationFeed) emit(u domain.FeedUpdate) bool {
	select {
	case f.updates <- u:
		return true
	case <-f.stop:
		return false
	}
}

// sorted newest created first, conversations still waiting for created_date on top
func (f *ConversationFeed) sorted() []domain.Conversation {
	out := make([]domain.Conversation, 0, len(f.byID))
	for _, c := range f.byID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Conversation) int {
		switch {
		case a.CreatedDate == nil && b.CreatedDate != nil:
			return -1
		case a.CreatedDate != nil && b.CreatedDate == nil:
			return 1
		case a.CreatedDate != nil && !a.CreatedDate.Equal(*b.CreatedDate):
			return b.CreatedDate.Compare(*a.CreatedDate)
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}
