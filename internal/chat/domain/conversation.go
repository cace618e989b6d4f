package domain

import "time"

// Collection definition mongo db collection name
type Collection string

const (
	// Conversations conversation collection
	Conversations Collection = "conversations"
	// Messages message collection, one document per message keyed by chat_id
	Messages Collection = "messages"
	// Users directory collection
	Users Collection = "users"
)

// Conversation definition chat between a set of participants
type Conversation struct {
	ID              string     `bson:"_id" json:"id"`
	CreatorID       string     `bson:"creator_id" json:"creator_id"`
	ParticipantIDs  []string   `bson:"participant_ids" json:"participant_ids"`
	RecentMessageID string     `bson:"recent_message_id" json:"recent_message_id"`
	CreatedDate     *time.Time `bson:"created_date,omitempty" json:"created_date,omitempty"`
}

// HasParticipant check user is in participant list
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message definition a single chat message
type Message struct {
	ID       string     `bson:"_id" json:"id"`
	ChatID   string     `bson:"chat_id" json:"chat_id"`
	SenderID string     `bson:"sender_id" json:"sender_id"`
	Content  string     `bson:"content" json:"content"`
	SentDate *time.Time `bson:"sent_date,omitempty" json:"sent_date,omitempty"`
}

// Resolved reports whether the server has assigned the sent date.
func (m *Message) Resolved() bool {
	return m.SentDate != nil
}

// Before orders messages by (sentDate, id). Both must be resolved.
func (m *Message) Before(o *Message) bool {
	if !m.SentDate.Equal(*o.SentDate) {
		return m.SentDate.Before(*o.SentDate)
	}
	return m.ID < o.ID
}

// DirectoryEntry definition user profile record
type DirectoryEntry struct {
	ID          string     `bson:"_id" json:"id"`
	FirstName   string     `bson:"first_name" json:"first_name"`
	LastName    string     `bson:"last_name" json:"last_name"`
	Email       string     `bson:"email,omitempty" json:"email,omitempty"`
	Phone       string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Image       string     `bson:"image,omitempty" json:"image,omitempty"` // base64 jpeg
	ChatIDs     []string   `bson:"chat_ids,omitempty" json:"chat_ids,omitempty"`
	CreatedDate *time.Time `bson:"created_date,omitempty" json:"created_date,omitempty"`
}

// DisplayName first + last name, falling back to email or phone
func (e *DirectoryEntry) DisplayName() string {
	switch {
	case e.FirstName != "" && e.LastName != "":
		return e.FirstName + " " + e.LastName
	case e.FirstName != "":
		return e.FirstName
	case e.Email != "":
		return e.Email
	default:
		return e.Phone
	}
}
