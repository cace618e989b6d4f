package app

import (
	"context"
	"sync"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"

	"github.com/stretchr/testify/mock"
)

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// NewID moke conversation id
func (m *MockConversationRepository) NewID() string {
	args := m.Called()
	return args.String(0)
}

// CreateConversation moke create conversation
func (m *MockConversationRepository) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// FindByID moke find conversation by id
func (m *MockConversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindDirect moke find direct conversation
func (m *MockConversationRepository) FindDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateRecentMessage moke update recent pointer
func (m *MockConversationRepository) UpdateRecentMessage(ctx context.Context, conversationID, messageID string) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

// UpdateParticipants moke replace participants
func (m *MockConversationRepository) UpdateParticipants(ctx context.Context, conversationID string, participantIDs []string) error {
	args := m.Called(ctx, conversationID, participantIDs)
	return args.Error(0)
}

// DeleteConversation moke delete conversation
func (m *MockConversationRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

// WatchByParticipant moke conversation list subscription
func (m *MockConversationRepository) WatchByParticipant(ctx context.Context, userID string) (repository.Subscription[domain.Conversation], error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(repository.Subscription[domain.Conversation]), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// NewID moke message id
func (m *MockMessageRepository) NewID() string {
	args := m.Called()
	return args.String(0)
}

// InsertMessage moke insert msg
func (m *MockMessageRepository) InsertMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// ListMessageIDs moke list message ids of a conversation
func (m *MockMessageRepository) ListMessageIDs(ctx context.Context, chatID string) ([]string, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// DeleteBatch moke batch delete
func (m *MockMessageRepository) DeleteBatch(ctx context.Context, chatID string, messageIDs []string) error {
	args := m.Called(ctx, chatID, messageIDs)
	return args.Error(0)
}

// WatchByChat moke message subscription
func (m *MockMessageRepository) WatchByChat(ctx context.Context, chatID string) (repository.Subscription[domain.Message], error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) != nil {
		return args.Get(0).(repository.Subscription[domain.Message]), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockDirectoryRepository Mock DirectoryRepository
type MockDirectoryRepository struct {
	mock.Mock
}

// FindByID moke find user
func (m *MockDirectoryRepository) FindByID(ctx context.Context, userID string) (*domain.DirectoryEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.DirectoryEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByIDs moke membership query
func (m *MockDirectoryRepository) FindByIDs(ctx context.Context, userIDs []string) ([]domain.DirectoryEntry, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.DirectoryEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindAll moke directory scan
func (m *MockDirectoryRepository) FindAll(ctx context.Context) ([]domain.DirectoryEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.DirectoryEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

// AddChatID moke index conversation for user
func (m *MockDirectoryRepository) AddChatID(ctx context.Context, userID, chatID string) error {
	args := m.Called(ctx, userID, chatID)
	return args.Error(0)
}

// RemoveChatID moke remove conversation from user index
func (m *MockDirectoryRepository) RemoveChatID(ctx context.Context, userID, chatID string) error {
	args := m.Called(ctx, userID, chatID)
	return args.Error(0)
}

// MockRedisPubSub Mock RedisPubSub
type MockRedisPubSub struct {
	mock.Mock
}

// Publish moke publisher
func (m *MockRedisPubSub) Publish(channel string, message interface{}) error {
	args := m.Called(channel, message)
	return args.Error(0)
}

// Subscribe moke subscriber
func (m *MockRedisPubSub) Subscribe(ctx context.Context, channel string, handler func(resp domain.WSResponse)) error {
	args := m.Called(channel, handler)
	return args.Error(0)
}

// FakeSubscription hand driven Subscription, Push delivers a batch, Fail ends it with an error
type FakeSubscription[T any] struct {
	ch     chan []domain.Change[T]
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
	err    error
}

// NewFakeSubscription create FakeSubscription
func NewFakeSubscription[T any](buffer int) *FakeSubscription[T] {
	return &FakeSubscription[T]{
		ch:   make(chan []domain.Change[T], buffer),
		done: make(chan struct{}),
	}
}

// Push deliver one batch, false once the subscription ended
func (f *FakeSubscription[T]) Push(batch ...domain.Change[T]) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.ch <- batch:
		return true
	case <-f.done:
		return false
	}
}

// Fail end the subscription with err
func (f *FakeSubscription[T]) Fail(err error) {
	f.end(err)
}

func (f *FakeSubscription[T]) end(err error) {
	f.once.Do(func() {
		close(f.done)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.err = err
		f.closed = true
		close(f.ch)
	})
}

// Changes delta batches
func (f *FakeSubscription[T]) Changes() <-chan []domain.Change[T] {
	return f.ch
}

// Err terminal error
func (f *FakeSubscription[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close end without error
func (f *FakeSubscription[T]) Close() error {
	f.end(nil)
	return nil
}

// Closed reports whether Close or Fail was called
func (f *FakeSubscription[T]) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
