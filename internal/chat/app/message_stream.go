package app

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// MessageStream keeps one conversation's messages ordered by (sentDate, id) from a live subscription.
// Messages without a server timestamp wait in Pending, in arrival order, until an update resolves them.
type MessageStream struct {
	conversationID string
	sub            repository.Subscription[domain.Message]
	updates        chan domain.StreamUpdate
	stop           chan struct{}
	done           chan struct{}
	once           sync.Once
	releaseErr     error

	// 只由 run goroutine 存取
	ordered []domain.Message
	pending []domain.Message
}

// OpenMessageStream subscribe to a conversation's messages
func OpenMessageStream(ctx context.Context, repo repository.MessageRepository, conversationID string, buffer int) (*MessageStream, error) {
	sub, err := repo.WatchByChat(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe messages of %s: %w", domain.ErrStream, conversationID, err)
	}
	return NewMessageStream(conversationID, sub, buffer), nil
}

// NewMessageStream start consuming sub
func NewMessageStream(conversationID string, sub repository.Subscription[domain.Message], buffer int) *MessageStream {
	if buffer <= 0 {
		buffer = 1
	}
	s := &MessageStream{
		conversationID: conversationID,
		sub:            sub,
		updates:        make(chan domain.StreamUpdate, buffer),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go s.run()
	return s
}

// Key registry key
func (s *MessageStream) Key() string {
	return MessagesKey(s.conversationID)
}

// ConversationID streamed conversation
func (s *MessageStream) ConversationID() string {
	return s.conversationID
}

// Updates one StreamUpdate per delivered batch. Closed after a terminal error or Release.
func (s *MessageStream) Updates() <-chan domain.StreamUpdate {
	return s.updates
}

// Release stop delivery. In-flight writes are not affected. Safe to call more than once.
func (s *MessageStream) Release() error {
	s.once.Do(func() {
		close(s.stop)
		s.releaseErr = s.sub.Close()
		<-s.done
	})
	return s.releaseErr
}

func (s *MessageStream) run() {
	defer close(s.done)
	defer close(s.updates)

	for {
		select {
		case batch, ok := <-s.sub.Changes():
			if !ok {
				if err := s.sub.Err(); err != nil {
					logger.Log.Error("message stream terminated", zap.String("conversation_id", s.conversationID), zap.Error(err))
					s.emit(domain.StreamUpdate{
						ConversationID: s.conversationID,
						LastInserted:   -1,
						Err:            fmt.Errorf("%w: conversation %s: %w", domain.ErrStream, s.conversationID, err),
					})
				}
				return
			}
			last := s.apply(batch)
			if !s.emit(s.snapshot(last)) {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *MessageStream) emit(u domain.StreamUpdate) bool {
	select {
	case s.updates <- u:
		return true
	case <-s.stop:
		return false
	}
}

// apply batch, return id of the last message that entered the list
func (s *MessageStream) apply(batch []domain.Change[domain.Message]) string {
	var last string
	for _, ch := range batch {
		switch ch.Type {
		case domain.ChangeRemoved:
			s.remove(ch.ID)
		case domain.ChangeAdded, domain.ChangeModified:
			if ch.Doc == nil || ch.Doc.ChatID != s.conversationID {
				continue
			}
			if s.upsert(*ch.Doc) {
				last = ch.Doc.ID
			}
		}
	}
	return last
}

// upsert reports whether msg entered the list (new, or newly resolved from pending)
func (s *MessageStream) upsert(msg domain.Message) bool {
	if i := indexOfMessage(s.pending, msg.ID); i >= 0 {
		if !msg.Resolved() {
			s.pending[i] = msg
			return false
		}
		s.pending = slices.Delete(s.pending, i, i+1)
		s.insertOrdered(msg)
		return true
	}

	if i := indexOfMessage(s.ordered, msg.ID); i >= 0 {
		old := s.ordered[i]
		s.ordered = slices.Delete(s.ordered, i, i+1)
		if !msg.Resolved() {
			msg.SentDate = old.SentDate
		}
		s.insertOrdered(msg)
		return false
	}

	if !msg.Resolved() {
		s.pending = append(s.pending, msg)
		return true
	}
	s.insertOrdered(msg)
	return true
}

func (s *MessageStream) insertOrdered(msg domain.Message) {
	i := sort.Search(len(s.ordered), func(i int) bool {
		return !s.ordered[i].Before(&msg)
	})
	s.ordered = slices.Insert(s.ordered, i, msg)
}

func (s *MessageStream) remove(id string) {
	if i := indexOfMessage(s.ordered, id); i >= 0 {
		s.ordered = slices.Delete(s.ordered, i, i+1)
		return
	}
	if i := indexOfMessage(s.pending, id); i >= 0 {
		s.pending = slices.Delete(s.pending, i, i+1)
	}
}

func (s *MessageStream) snapshot(lastID string) domain.StreamUpdate {
	u := domain.StreamUpdate{
		ConversationID: s.conversationID,
		Messages:       slices.Clone(s.ordered),
		Pending:        slices.Clone(s.pending),
		LastInserted:   -1,
	}
	if lastID == "" {
		return u
	}
	if i := indexOfMessage(s.ordered, lastID); i >= 0 {
		u.LastInserted = i
	} else if i := indexOfMessage(s.pending, lastID); i >= 0 {
		u.LastInserted = len(s.ordered) + i
	}
	return u
}

func indexOfMessage(msgs []domain.Message, id string) int {
	return slices.IndexFunc(msgs, func(m domain.Message) bool { return m.ID == id })
}
