package app

import (
	"testing"
	"time"

	"chat_sync_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convAt(id string, sec int, participants ...string) *domain.Conversation {
	t := baseTime.Add(time.Duration(sec) * time.Second)
	return &domain.Conversation{ID: id, CreatorID: participants[0], ParticipantIDs: participants, CreatedDate: &t}
}

func nextFeed(t *testing.T, f *ConversationFeed) domain.FeedUpdate {
	t.Helper()
	select {
	case u, ok := <-f.Updates():
		require.True(t, ok, "feed closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for feed update")
	}
	return domain.FeedUpdate{}
}

func conversationIDs(cs []domain.Conversation) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestConversationFeed_NewestFirst(t *testing.T) {
	sub := NewFakeSubscription[domain.Conversation](4)
	f := NewConversationFeed("u1", sub, 4)
	defer f.Release()

	assert.Equal(t, "conversations:u1", f.Key())

	sub.Push(
		domain.Change[domain.Conversation]{Type: domain.ChangeAdded, ID: "old", Doc: convAt("old", 1, "u1", "u2")},
		domain.Change[domain.Conversation]{Type: domain.ChangeAdded, ID: "new", Doc: convAt("new", 9, "u1", "u3")},
	)
	u := nextFeed(t, f)
	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, []string{"new", "old"}, conversationIDs(u.Conversations))

	// 尚未有 created_date 的排最前面
	fresh := &domain.Conversation{ID: "fresh", CreatorID: "u1", ParticipantIDs: []string{"u1", "u4"}}
	sub.Push(domain.Change[domain.Conversation]{Type: domain.ChangeAdded, ID: "fresh", Doc: fresh})
	u = nextFeed(t, f)
	assert.Equal(t, []string{"fresh", "new", "old"}, conversationIDs(u.Conversations))
}

func TestConversationFeed_RemovalAndParticipantLoss(t *testing.T) {
	sub := NewFakeSubscription[domain.Conversation](4)
	f := NewConversationFeed("u2", sub, 4)
	defer f.Release()

	sub.Push(
		domain.Change[domain.Conversation]{Type: domain.ChangeAdded, ID: "a", Doc: convAt("a", 1, "u1", "u2")},
		domain.Change[domain.Conversation]{Type: domain.ChangeAdded, ID: "b", Doc: convAt("b", 2, "u1", "u2")},
	)
	nextFeed(t, f)

	sub.Push(
		domain.Change[domain.Conversation]{Type: domain.ChangeRemoved, ID: "a"},
		domain.Change[domain.Conversation]{Type: domain.ChangeModified, ID: "b", Doc: convAt("b", 2, "u1")},
	)
	u := nextFeed(t, f)
	assert.Empty(t, u.Conversations)
}

func TestConversationFeed_TerminalError(t *testing.T) {
	sub := NewFakeSubscription[domain.Conversation](1)
	f := NewConversationFeed("u1", sub, 1)
	defer f.Release()

	sub.Fail(assert.AnError)
	u := nextFeed(t, f)
	assert.ErrorIs(t, u.Err, domain.ErrStream)
	assert.ErrorIs(t, u.Err, assert.AnError)
}
