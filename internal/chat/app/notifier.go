package app

import (
	"sync"

	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// participantNotifier best-effort push to the other participants' redis channels
type participantNotifier struct {
	pubsub  repository.PubSub
	pending sync.WaitGroup
}

func newParticipantNotifier(pubsub repository.PubSub) *participantNotifier {
	return &participantNotifier{pubsub: pubsub}
}

// messageSent publish in the background to everyone in conv except the sender
func (n *participantNotifier) messageSent(conv *domain.Conversation, msg domain.Message) {
	if n == nil || n.pubsub == nil {
		return
	}
	participantIDs := append([]string(nil), conv.ParticipantIDs...)
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		n.publish(participantIDs, msg.SenderID, domain.Notification{
			Action:         domain.NotifyMessage,
			ConversationID: msg.ChatID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			Content:        msg.Content,
		})
	}()
}

func (n *participantNotifier) conversationDeleted(conv *domain.Conversation, by string) {
	if n == nil || n.pubsub == nil {
		return
	}
	n.publish(conv.ParticipantIDs, by, domain.Notification{
		Action:         domain.NotifyDeleted,
		ConversationID: conv.ID,
		SenderID:       by,
	})
}

func (n *participantNotifier) publish(participantIDs []string, except string, note domain.Notification) {
	for _, uid := range participantIDs {
		if uid == except {
			continue
		}
		if err := n.pubsub.Publish(repository.UserChannel(uid), note); err != nil {
			logger.Log.Warn("publish notification",
				zap.String("user_id", uid),
				zap.String("action", string(note.Action)),
				zap.Error(err))
		}
	}
}

func (n *participantNotifier) wait() {
	if n == nil {
		return
	}
	n.pending.Wait()
}
