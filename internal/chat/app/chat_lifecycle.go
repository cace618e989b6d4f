package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg"
	"chat_sync_service/pkg/config"
	errprocess "chat_sync_service/pkg/err"
	"chat_sync_service/pkg/logger"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CreateResult result of Create / OpenDirect
type CreateResult struct {
	ConversationID string
	// MessageID seed message, empty when no content was given
	MessageID string
	// Stream nil when the subscription could not be opened, see the warning handler
	Stream *MessageStream
}

// FetchResult conversation with its resolved participants
type FetchResult struct {
	Conversation *domain.Conversation
	Participants []domain.DirectoryEntry
	// RemovedIDs participants without a directory entry, dropped from the conversation
	RemovedIDs []string
}

// ChatLifecycleManager create / send / delete / fetch conversations
type ChatLifecycleManager struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	directory     repository.DirectoryRepository

	cache      *DirectoryCache
	reconciler *ParticipantReconciler
	pointer    *RecentPointerUpdater
	notifier   *participantNotifier
	pubsub     repository.PubSub

	// registry 所屬 scope 的訂閱, nil 時不追蹤
	registry  *ListenerRegistry
	engine    config.EngineConfig
	onWarning WarningHandler
}

// Option configure ChatLifecycleManager
type Option func(*ChatLifecycleManager)

// WithWarningHandler replace the default log handler
func WithWarningHandler(h WarningHandler) Option {
	return func(m *ChatLifecycleManager) {
		if h != nil {
			m.onWarning = h
		}
	}
}

// WithNotifier publish send / delete notifications to participants
func WithNotifier(ps repository.PubSub) Option {
	return func(m *ChatLifecycleManager) {
		m.pubsub = ps
	}
}

// WithEngineConfig batch and query limits
func WithEngineConfig(cfg config.EngineConfig) Option {
	return func(m *ChatLifecycleManager) {
		m.engine = cfg
	}
}

// WithDirectoryCache share a cache with other components
func WithDirectoryCache(c *DirectoryCache) Option {
	return func(m *ChatLifecycleManager) {
		if c != nil {
			m.cache = c
		}
	}
}

// NewChatLifecycleManager create manager
func NewChatLifecycleManager(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	directory repository.DirectoryRepository,
	opts ...Option,
) *ChatLifecycleManager {
	m := &ChatLifecycleManager{
		conversations: conversations,
		messages:      messages,
		directory:     directory,
		cache:         NewDirectoryCache(),
		onWarning:     LogWarning,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.engine = m.engine.WithDefaults()
	m.reconciler = NewParticipantReconciler(directory, m.cache, m.engine.MembershipQueryLimit)
	m.pointer = NewRecentPointerUpdater(conversations, LogWarning)
	if m.pubsub != nil {
		m.notifier = newParticipantNotifier(m.pubsub)
	}
	return m
}

// ForScope manager whose streams are tracked by reg. Repositories and the pointer updater are shared with m.
// opts apply to the scope only; warnings of the scope's sends go to the scope's handler.
func (m *ChatLifecycleManager) ForScope(reg *ListenerRegistry, opts ...Option) *ChatLifecycleManager {
	scoped := *m
	scoped.registry = reg
	for _, opt := range opts {
		opt(&scoped)
	}
	scoped.engine = scoped.engine.WithDefaults()
	if scoped.engine != m.engine || scoped.cache != m.cache {
		scoped.reconciler = NewParticipantReconciler(scoped.directory, scoped.cache, scoped.engine.MembershipQueryLimit)
	}
	if scoped.pubsub != m.pubsub {
		scoped.notifier = nil
		if scoped.pubsub != nil {
			scoped.notifier = newParticipantNotifier(scoped.pubsub)
		}
	}
	return &scoped
}

// Directory read-through directory access sharing this manager's cache
func (m *ChatLifecycleManager) Directory() *Directory {
	return NewDirectory(m.directory, m.cache)
}

// Pointer recent pointer updater used by Send
func (m *ChatLifecycleManager) Pointer() *RecentPointerUpdater {
	return m.pointer
}

// Wait block until background pointer updates and notifications finished
func (m *ChatLifecycleManager) Wait() {
	m.pointer.Wait()
	m.notifier.wait()
}

func (m *ChatLifecycleManager) warn(w domain.Warning) {
	m.onWarning(w)
}

// pointerFailed a pointer update that finds no conversation means Delete won the race against Send,
// the late message is removed so nothing is left under the deleted id.
func (m *ChatLifecycleManager) pointerFailed(w domain.Warning) {
	if errors.Is(w.Err, domain.ErrNotFound) && w.MessageID != "" {
		if err := m.messages.DeleteBatch(context.Background(), w.ConversationID, []string{w.MessageID}); err != nil {
			w.Err = multierr.Append(w.Err, fmt.Errorf("remove late message: %w", err))
		} else {
			logger.Log.Info("late message removed", zap.String("conversation_id", w.ConversationID), zap.String("message_id", w.MessageID))
		}
	}
	m.warn(w)
}

// Authorize load a conversation and check userID is one of its participants
func (m *ChatLifecycleManager) Authorize(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := m.conversations.FindByID(ctx, conversationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errprocess.WrapErr(domain.ErrNotFound, "load conversation", err, zap.String("conversation_id", conversationID))
	}
	if err != nil {
		return nil, errprocess.WrapErr(domain.ErrPersistence, "load conversation", err, zap.String("conversation_id", conversationID))
	}
	if !conv.HasParticipant(userID) {
		return nil, errprocess.Wrap(domain.ErrAuthorization, "user is not a participant",
			zap.String("conversation_id", conversationID), zap.String("user_id", userID))
	}
	return conv, nil
}

// Create write the conversation, index it for every participant, then send the seed message.
// content "" creates the conversation without a message.
func (m *ChatLifecycleManager) Create(ctx context.Context, creatorID string, participantIDs []string, content string) (*CreateResult, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, errprocess.Wrap(domain.ErrValidation, "creator id is empty")
	}
	others := pkg.Without(pkg.UniqueTrimmed(participantIDs), []string{creatorID})
	if len(others) == 0 {
		return nil, errprocess.Wrap(domain.ErrValidation, "participant ids are empty", zap.String("creator_id", creatorID))
	}
	if content != "" && strings.TrimSpace(content) == "" {
		return nil, errprocess.Wrap(domain.ErrValidation, "message content is blank", zap.String("creator_id", creatorID))
	}

	conv := &domain.Conversation{
		ID:             m.conversations.NewID(),
		CreatorID:      creatorID,
		ParticipantIDs: append([]string{creatorID}, others...),
	}
	if err := m.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, errprocess.WrapErr(domain.ErrPersistence, "create conversation", err, zap.String("conversation_id", conv.ID))
	}
	logger.Log.Info("conversation created", zap.String("conversation_id", conv.ID), zap.Strings("participant_ids", conv.ParticipantIDs))

	// 每個 participant 各自寫入, 失敗不影響其他人
	var indexErr error
	for _, uid := range conv.ParticipantIDs {
		if err := m.directory.AddChatID(ctx, uid, conv.ID); err != nil {
			indexErr = multierr.Append(indexErr, fmt.Errorf("user %s: %w", uid, err))
		}
	}
	if indexErr != nil {
		m.warn(domain.Warning{Op: "index_conversation", ConversationID: conv.ID, Err: indexErr})
	}

	res := &CreateResult{ConversationID: conv.ID}
	if content != "" {
		msgID, err := m.send(ctx, conv, creatorID, content)
		if err != nil {
			return res, err
		}
		res.MessageID = msgID
	}
	m.attachStream(ctx, res)
	return res, nil
}

// OpenDirect reuse the conversation whose participants are exactly {userID, peerID}, else create it
func (m *ChatLifecycleManager) OpenDirect(ctx context.Context, userID, peerID, content string) (*CreateResult, error) {
	userID, peerID = strings.TrimSpace(userID), strings.TrimSpace(peerID)
	if userID == "" || peerID == "" || userID == peerID {
		return nil, errprocess.Wrap(domain.ErrValidation, "direct conversation needs two distinct users",
			zap.String("user_id", userID), zap.String("peer_id", peerID))
	}
	if content != "" && strings.TrimSpace(content) == "" {
		return nil, errprocess.Wrap(domain.ErrValidation, "message content is blank", zap.String("user_id", userID))
	}

	conv, err := m.conversations.FindDirect(ctx, userID, peerID)
	if errors.Is(err, domain.ErrNotFound) {
		return m.Create(ctx, userID, []string{peerID}, content)
	}
	if err != nil {
		return nil, errprocess.WrapErr(domain.ErrPersistence, "find direct conversation", err,
			zap.String("user_id", userID), zap.String("peer_id", peerID))
	}

	res := &CreateResult{ConversationID: conv.ID}
	if content != "" {
		msgID, err := m.send(ctx, conv, userID, content)
		if err != nil {
			return res, err
		}
		res.MessageID = msgID
	}
	if h, ok := m.registeredStream(conv.ID); ok {
		res.Stream, _ = h.(*MessageStream)
		return res, nil
	}
	m.attachStream(ctx, res)
	return res, nil
}

func (m *ChatLifecycleManager) attachStream(ctx context.Context, res *CreateResult) {
	stream, err := m.OpenStream(ctx, res.ConversationID)
	if err != nil {
		m.warn(domain.Warning{Op: "open_stream", ConversationID: res.ConversationID, Err: err})
		return
	}
	res.Stream = stream
}

// Send write a message from one of the conversation's participants, sent_date is assigned by the server.
// The recent pointer is updated in the background.
func (m *ChatLifecycleManager) Send(ctx context.Context, conversationID, senderID, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errprocess.Wrap(domain.ErrValidation, "message content is empty", zap.String("conversation_id", conversationID))
	}
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(senderID) == "" {
		return "", errprocess.Wrap(domain.ErrValidation, "conversation id and sender id are required")
	}
	conv, err := m.Authorize(ctx, conversationID, senderID)
	if err != nil {
		return "", err
	}
	return m.send(ctx, conv, senderID, content)
}

func (m *ChatLifecycleManager) send(ctx context.Context, conv *domain.Conversation, senderID, content string) (string, error) {
	msg := domain.Message{
		ID:       m.messages.NewID(),
		ChatID:   conv.ID,
		SenderID: senderID,
		Content:  content,
	}
	if err := m.messages.InsertMessage(ctx, &msg); err != nil {
		return "", errprocess.WrapErr(domain.ErrPersistence, "insert message", err,
			zap.String("conversation_id", conv.ID), zap.String("message_id", msg.ID))
	}

	m.pointer.ScheduleWith(ctx, conv.ID, msg.ID, m.pointerFailed)
	m.notifier.messageSent(conv, msg)
	return msg.ID, nil
}

// Delete cascading delete by the creator: message batches, the conversation, then each participant's index.
func (m *ChatLifecycleManager) Delete(ctx context.Context, conversationID, requestingUserID string) error {
	conv, err := m.conversations.FindByID(ctx, conversationID)
	if errors.Is(err, domain.ErrNotFound) {
		return errprocess.WrapErr(domain.ErrNotFound, "delete conversation", err, zap.String("conversation_id", conversationID))
	}
	if err != nil {
		return errprocess.WrapErr(domain.ErrPersistence, "load conversation", err, zap.String("conversation_id", conversationID))
	}
	if conv.CreatorID != requestingUserID {
		return errprocess.Wrap(domain.ErrAuthorization, "only the creator can delete a conversation",
			zap.String("conversation_id", conversationID), zap.String("user_id", requestingUserID))
	}

	ids, err := m.messages.ListMessageIDs(ctx, conversationID)
	if err != nil {
		return errprocess.WrapErr(domain.ErrPersistence, "list messages", err, zap.String("conversation_id", conversationID))
	}

	deleted := 0
	for _, batch := range pkg.Chunk(ids, m.engine.BatchDeleteLimit) {
		if err := m.messages.DeleteBatch(ctx, conversationID, batch); err != nil {
			if deleted == 0 {
				return errprocess.WrapErr(domain.ErrPersistence, "delete messages", err, zap.String("conversation_id", conversationID))
			}
			return m.partial(conversationID, domain.StageMessages, deleted, len(ids), err)
		}
		deleted += len(batch)
	}

	if err := m.conversations.DeleteConversation(ctx, conversationID); err != nil {
		if deleted == 0 {
			return errprocess.WrapErr(domain.ErrPersistence, "delete conversation", err, zap.String("conversation_id", conversationID))
		}
		return m.partial(conversationID, domain.StageConversation, deleted, len(ids), err)
	}
	logger.Log.Info("conversation deleted", zap.String("conversation_id", conversationID), zap.Int("messages", deleted))

	// 刪除期間寫入的訊息
	if err := m.sweepMessages(ctx, conversationID); err != nil {
		m.warn(domain.Warning{Op: "sweep_messages", ConversationID: conversationID, Err: err})
	}

	if m.registry != nil {
		if err := m.registry.Release(MessagesKey(conversationID)); err != nil {
			logger.Log.Warn("release message stream", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}

	var indexErr error
	for _, uid := range conv.ParticipantIDs {
		if err := m.directory.RemoveChatID(ctx, uid, conversationID); err != nil {
			logger.Log.Warn("remove conversation from user index", zap.String("user_id", uid), zap.String("conversation_id", conversationID), zap.Error(err))
			indexErr = multierr.Append(indexErr, fmt.Errorf("user %s: %w", uid, err))
		}
	}
	if indexErr != nil {
		m.warn(domain.Warning{Op: "unindex_conversation", ConversationID: conversationID, Err: indexErr})
	}

	m.notifier.conversationDeleted(conv, requestingUserID)
	return nil
}

func (m *ChatLifecycleManager) sweepMessages(ctx context.Context, conversationID string) error {
	ids, err := m.messages.ListMessageIDs(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, batch := range pkg.Chunk(ids, m.engine.BatchDeleteLimit) {
		if err := m.messages.DeleteBatch(ctx, conversationID, batch); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		logger.Log.Info("late messages removed", zap.String("conversation_id", conversationID), zap.Int("messages", len(ids)))
	}
	return nil
}

func (m *ChatLifecycleManager) partial(conversationID string, stage domain.DeleteStage, deleted, total int, cause error) error {
	err := &domain.PartialDeletionError{
		ConversationID:  conversationID,
		Stage:           stage,
		DeletedMessages: deleted,
		TotalMessages:   total,
		Err:             cause,
	}
	logger.Log.Error("partial deletion", zap.String("conversation_id", conversationID), zap.Error(err))
	return err
}

// Fetch load a conversation and resolve its participants. Ids without a directory entry are written out of the
// conversation and reported as a warning.
func (m *ChatLifecycleManager) Fetch(ctx context.Context, conversationID string) (*FetchResult, error) {
	conv, err := m.conversations.FindByID(ctx, conversationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errprocess.WrapErr(domain.ErrNotFound, "fetch conversation", err, zap.String("conversation_id", conversationID))
	}
	if err != nil {
		return nil, errprocess.WrapErr(domain.ErrPersistence, "load conversation", err, zap.String("conversation_id", conversationID))
	}
	if len(conv.ParticipantIDs) == 0 {
		return nil, errprocess.Wrap(domain.ErrInvalidState, "conversation has no participants", zap.String("conversation_id", conversationID))
	}

	found, missing, err := m.reconciler.Reconcile(ctx, conv.ParticipantIDs)
	if err != nil {
		return nil, err
	}

	res := &FetchResult{Conversation: conv, Participants: found}
	if len(missing) == 0 {
		return res, nil
	}

	res.RemovedIDs = missing
	kept := pkg.Without(conv.ParticipantIDs, missing)
	var updateErr error
	if err := m.conversations.UpdateParticipants(ctx, conversationID, kept); err != nil {
		updateErr = fmt.Errorf("%w: update participants: %w", domain.ErrPersistence, err)
	} else {
		conv.ParticipantIDs = kept
	}
	m.warn(domain.Warning{Op: "reconcile_participants", ConversationID: conversationID, RemovedIDs: missing, Err: updateErr})
	return res, nil
}

// OpenStream subscribe to a conversation's messages and register the stream in the scope registry.
// The subscription lives until Release or until ctx is done.
func (m *ChatLifecycleManager) OpenStream(ctx context.Context, conversationID string) (*MessageStream, error) {
	if _, ok := m.registeredStream(conversationID); ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateSubscription, MessagesKey(conversationID))
	}
	stream, err := OpenMessageStream(ctx, m.messages, conversationID, m.engine.StreamBuffer)
	if err != nil {
		return nil, err
	}
	if err := m.register(stream); err != nil {
		return nil, err
	}
	return stream, nil
}

// WatchConversations subscribe to the conversation list of userID
func (m *ChatLifecycleManager) WatchConversations(ctx context.Context, userID string) (*ConversationFeed, error) {
	if m.registry != nil {
		if _, ok := m.registry.Get(ConversationsKey(userID)); ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateSubscription, ConversationsKey(userID))
		}
	}
	feed, err := OpenConversationFeed(ctx, m.conversations, userID, m.engine.StreamBuffer)
	if err != nil {
		return nil, err
	}
	if err := m.register(feed); err != nil {
		return nil, err
	}
	return feed, nil
}

func (m *ChatLifecycleManager) registeredStream(conversationID string) (Handle, bool) {
	if m.registry == nil {
		return nil, false
	}
	return m.registry.Get(MessagesKey(conversationID))
}

func (m *ChatLifecycleManager) register(h Handle) error {
	if m.registry == nil {
		return nil
	}
	if err := m.registry.Register(h); err != nil {
		if relErr := h.Release(); relErr != nil {
			logger.Log.Warn("release rejected subscription", zap.String("key", h.Key()), zap.Error(relErr))
		}
		return err
	}
	return nil
}
