package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg"
)

// memStore in-memory document store, the three repository views below share it
type memStore struct {
	mu            sync.Mutex
	seq           int
	clock         time.Time
	conversations map[string]domain.Conversation
	messages      map[string]domain.Message
	users         map[string]domain.DirectoryEntry
	subs          map[string][]*FakeSubscription[domain.Message]

	// failDeleteBatchAt DeleteBatch call (1-based) that fails, 0 never
	failDeleteBatchAt int
	deleteBatchCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		clock:         baseTime,
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string]domain.Message),
		users:         make(map[string]domain.DirectoryEntry),
		subs:          make(map[string][]*FakeSubscription[domain.Message]),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func (s *memStore) now() *time.Time {
	s.clock = s.clock.Add(time.Second)
	t := s.clock
	return &t
}

func (s *memStore) publish(chatID string, ch domain.Change[domain.Message]) {
	s.mu.Lock()
	subs := append([]*FakeSubscription[domain.Message](nil), s.subs[chatID]...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Push(ch)
	}
}

func (s *memStore) messagesOf(chatID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	return out
}

func (s *memStore) conversation(id string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	return c, ok
}

type memConversations struct{ *memStore }

func (r memConversations) NewID() string { return r.nextID("c") }

func (r memConversations) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[c.ID]; ok {
		return fmt.Errorf("conversation %s already exists", c.ID)
	}
	stored := *c
	stored.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	stored.CreatedDate = r.now()
	r.conversations[c.ID] = stored
	return nil
}

func (r memConversations) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	c, ok := r.conversation(id)
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, id)
	}
	c.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	return &c, nil
}

func (r memConversations) FindDirect(ctx context.Context, a, b string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if len(c.ParticipantIDs) == 2 && c.HasParticipant(a) && c.HasParticipant(b) {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: direct %s/%s", domain.ErrNotFound, a, b)
}

func (r memConversations) update(id string, fn func(*domain.Conversation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return fmt.Errorf("%w: conversation %s", domain.ErrNotFound, id)
	}
	fn(&c)
	r.conversations[id] = c
	return nil
}

func (r memConversations) UpdateRecentMessage(ctx context.Context, id, messageID string) error {
	return r.update(id, func(c *domain.Conversation) { c.RecentMessageID = messageID })
}

func (r memConversations) UpdateParticipants(ctx context.Context, id string, participantIDs []string) error {
	return r.update(id, func(c *domain.Conversation) { c.ParticipantIDs = append([]string(nil), participantIDs...) })
}

func (r memConversations) DeleteConversation(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, id)
	return nil
}

func (r memConversations) WatchByParticipant(ctx context.Context, userID string) (repository.Subscription[domain.Conversation], error) {
	r.mu.Lock()
	var snapshot []domain.Change[domain.Conversation]
	for _, c := range r.conversations {
		if c.HasParticipant(userID) {
			c := c
			snapshot = append(snapshot, domain.Change[domain.Conversation]{Type: domain.ChangeAdded, ID: c.ID, Doc: &c})
		}
	}
	r.mu.Unlock()
	sub := NewFakeSubscription[domain.Conversation](16)
	sub.Push(snapshot...)
	return sub, nil
}

type memMessages struct{ *memStore }

func (r memMessages) NewID() string { return r.nextID("m") }

func (r memMessages) InsertMessage(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	stored := *m
	stored.SentDate = r.now()
	r.messages[m.ID] = stored
	r.mu.Unlock()
	r.publish(m.ChatID, domain.Change[domain.Message]{Type: domain.ChangeAdded, ID: stored.ID, Doc: &stored})
	return nil
}

func (r memMessages) ListMessageIDs(ctx context.Context, chatID string) ([]string, error) {
	var ids []string
	for _, m := range r.messagesOf(chatID) {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r memMessages) DeleteBatch(ctx context.Context, chatID string, ids []string) error {
	r.mu.Lock()
	r.deleteBatchCalls++
	if r.failDeleteBatchAt != 0 && r.deleteBatchCalls == r.failDeleteBatchAt {
		r.mu.Unlock()
		return errors.New("batch rejected")
	}
	for _, id := range ids {
		delete(r.messages, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.publish(chatID, domain.Change[domain.Message]{Type: domain.ChangeRemoved, ID: id})
	}
	return nil
}

func (r memMessages) WatchByChat(ctx context.Context, chatID string) (repository.Subscription[domain.Message], error) {
	sub := NewFakeSubscription[domain.Message](16)
	var snapshot []domain.Change[domain.Message]
	for _, m := range r.messagesOf(chatID) {
		m := m
		snapshot = append(snapshot, domain.Change[domain.Message]{Type: domain.ChangeAdded, ID: m.ID, Doc: &m})
	}
	sub.Push(snapshot...)
	r.mu.Lock()
	r.subs[chatID] = append(r.subs[chatID], sub)
	r.mu.Unlock()
	return sub, nil
}

type memDirectory struct{ *memStore }

func (r memDirectory) FindByID(ctx context.Context, userID string) (*domain.DirectoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	return &e, nil
}

func (r memDirectory) FindByIDs(ctx context.Context, userIDs []string) ([]domain.DirectoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DirectoryEntry
	for _, id := range userIDs {
		if e, ok := r.users[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r memDirectory) FindAll(ctx context.Context) ([]domain.DirectoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DirectoryEntry, 0, len(r.users))
	for _, e := range r.users {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memDirectory) editChatIDs(userID string, fn func([]string) []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	e.ChatIDs = fn(e.ChatIDs)
	r.users[userID] = e
	return nil
}

func (r memDirectory) AddChatID(ctx context.Context, userID, chatID string) error {
	return r.editChatIDs(userID, func(ids []string) []string {
		if pkg.Contains(ids, chatID) {
			return ids
		}
		return append(ids, chatID)
	})
}

func (r memDirectory) RemoveChatID(ctx context.Context, userID, chatID string) error {
	return r.editChatIDs(userID, func(ids []string) []string {
		return pkg.Without(ids, []string{chatID})
	})
}
