package domain

import (
	"errors"
	"fmt"
)

// Engine error kinds, match with errors.Is.
var (
	ErrValidation            = errors.New("validation error")
	ErrAuthorization         = errors.New("authorization error")
	ErrNotFound              = errors.New("not found")
	ErrPersistence           = errors.New("persistence error")
	ErrPartialDeletion       = errors.New("partial deletion")
	ErrStream                = errors.New("stream error")
	ErrDuplicateSubscription = errors.New("duplicate subscription")
	ErrInvalidState          = errors.New("invalid state")
)

// DeleteStage step of the cascading delete
type DeleteStage string

const (
	// StageMessages deleting message batches
	StageMessages DeleteStage = "messages"
	// StageConversation deleting the conversation document
	StageConversation DeleteStage = "conversation"
)

// PartialDeletionError cascading delete stopped after some documents were removed
type PartialDeletionError struct {
	ConversationID  string
	Stage           DeleteStage
	DeletedMessages int
	TotalMessages   int
	Err             error
}

func (e *PartialDeletionError) Error() string {
	return fmt.Sprintf("partial deletion of conversation %s at %s stage (%d/%d messages deleted): %v",
		e.ConversationID, e.Stage, e.DeletedMessages, e.TotalMessages, e.Err)
}

// Is matches ErrPartialDeletion
func (e *PartialDeletionError) Is(target error) bool {
	return target == ErrPartialDeletion
}

func (e *PartialDeletionError) Unwrap() error {
	return e.Err
}
