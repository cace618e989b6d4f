package domain

// Action websocket request action
type Action string

const (
	// CreateConversation websocket action create_conversation
	CreateConversation Action = "create_conversation"
	// OpenDirect websocket action open_direct
	OpenDirect Action = "open_direct"
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// DeleteConversation websocket action delete_conversation
	DeleteConversation Action = "delete_conversation"
	// FetchConversation websocket action fetch_conversation
	FetchConversation Action = "fetch_conversation"

	// OpenConversation websocket action open_conversation, starts a message stream
	OpenConversation Action = "open_conversation"
	// CloseConversation websocket action close_conversation, releases the message stream
	CloseConversation Action = "close_conversation"
	// WatchConversations websocket action watch_conversations
	WatchConversations Action = "watch_conversations"
	// ListDirectory websocket action list_directory
	ListDirectory Action = "list_directory"
	// RefreshDirectory websocket action refresh_directory, drops cached entries then lists again
	RefreshDirectory Action = "refresh_directory"

	// StreamMessages server push of a message stream update
	StreamMessages Action = "stream_messages"
	// StreamConversations server push of a conversation list update
	StreamConversations Action = "stream_conversations"
	// NotifyMessage server push from redis when a participant sent a message
	NotifyMessage Action = "notify_message"
	// NotifyDeleted server push from redis when a conversation was deleted
	NotifyDeleted Action = "notify_deleted"
	// NotifyWarning server push of a non-fatal warning
	NotifyWarning Action = "notify_warning"
)

// Notification payload published on chat:user:<id>
type Notification struct {
	Action         Action `json:"action"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// WSRequest websocket Request
type WSRequest struct {
	Action         string   `json:"action"`
	ConversationID string   `json:"conversation_id"`
	Participants   []string `json:"participants"`
	PeerID         string   `json:"peer_id"`
	Content        string   `json:"content"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
