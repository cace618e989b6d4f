package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Before(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	t2 := t1.Add(time.Second)

	a := Message{ID: "b", SentDate: &t1}
	b := Message{ID: "a", SentDate: &t2}
	c := Message{ID: "c", SentDate: &t1}

	assert.True(t, a.Before(&b))
	assert.False(t, b.Before(&a))
	// 同一時間以 id 排序
	assert.True(t, a.Before(&c))
	assert.False(t, a.Before(&a))
	assert.False(t, (&Message{ID: "p"}).Resolved())
}

func TestConversation_HasParticipant(t *testing.T) {
	c := Conversation{ParticipantIDs: []string{"u1", "u2"}}
	assert.True(t, c.HasParticipant("u2"))
	assert.False(t, c.HasParticipant("u3"))
}

func TestDirectoryEntry_DisplayName(t *testing.T) {
	assert.Equal(t, "Ann Lee", (&DirectoryEntry{FirstName: "Ann", LastName: "Lee"}).DisplayName())
	assert.Equal(t, "Ann", (&DirectoryEntry{FirstName: "Ann"}).DisplayName())
	assert.Equal(t, "a@b.c", (&DirectoryEntry{Email: "a@b.c", Phone: "123"}).DisplayName())
	assert.Equal(t, "123", (&DirectoryEntry{Phone: "123"}).DisplayName())
}

func TestPartialDeletionError(t *testing.T) {
	cause := errors.New("batch rejected")
	var err error = &PartialDeletionError{ConversationID: "c1", Stage: StageMessages, DeletedMessages: 500, TotalMessages: 1200, Err: cause}
	wrapped := fmt.Errorf("delete: %w", err)

	assert.ErrorIs(t, wrapped, ErrPartialDeletion)
	assert.ErrorIs(t, wrapped, cause)
	assert.NotErrorIs(t, wrapped, ErrPersistence)

	var partial *PartialDeletionError
	assert.True(t, errors.As(wrapped, &partial))
	assert.Contains(t, partial.Error(), "500/1200")
}
