package domain

// ChangeType kind of delta delivered by a watch
type ChangeType string

const (
	// ChangeAdded document entered the query result
	ChangeAdded ChangeType = "added"
	// ChangeModified document in the result changed
	ChangeModified ChangeType = "modified"
	// ChangeRemoved document left the query result
	ChangeRemoved ChangeType = "removed"
)

// Change one delta for a document. Doc is nil for ChangeRemoved.
type Change[T any] struct {
	Type ChangeType
	ID   string
	Doc  *T
}

// StreamUpdate definition the state a MessageStream emits after each batch
type StreamUpdate struct {
	ConversationID string
	// Messages resolved messages ordered by (sentDate, id)
	Messages []Message
	// Pending messages still waiting for a server timestamp, in arrival order
	Pending []Message
	// LastInserted index into Messages followed by Pending, -1 when the batch inserted nothing
	LastInserted int
	// Err terminal stream error, the channel is closed right after
	Err error
}

// FeedUpdate definition a conversation list snapshot
type FeedUpdate struct {
	UserID        string
	Conversations []Conversation
	Err           error
}

// Warning non-fatal secondary failure reported next to a successful operation
type Warning struct {
	Op             string
	ConversationID string
	MessageID      string
	RemovedIDs     []string
	Err            error
}
