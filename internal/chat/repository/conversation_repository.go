package repository

import (
	"context"
	"errors"
	"fmt"

	"chat_sync_service/internal/chat/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationRepository definition conversation documents
type ConversationRepository interface {
	NewID() string
	CreateConversation(ctx context.Context, c *domain.Conversation) error
	FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	FindDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	UpdateRecentMessage(ctx context.Context, conversationID, messageID string) error
	UpdateParticipants(ctx context.Context, conversationID string, participantIDs []string) error
	DeleteConversation(ctx context.Context, conversationID string) error
	WatchByParticipant(ctx context.Context, userID string) (Subscription[domain.Conversation], error)
}

type conversationRepository struct {
	coll   *mongo.Collection
	buffer int
}

// NewMongoConversationRepository create new mongo conversation repository
func NewMongoConversationRepository(db *mongo.Database, streamBuffer int) ConversationRepository {
	return &conversationRepository{
		coll:   db.Collection(string(domain.Conversations)),
		buffer: streamBuffer,
	}
}

// NewID generate a conversation id
func (r *conversationRepository) NewID() string {
	return uuid.New().String()
}

// CreateConversation insert conversation, created_date assigned by the server
func (r *conversationRepository) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	filter := bson.M{"_id": c.ID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"creator_id":        c.CreatorID,
			"participant_ids":   c.ParticipantIDs,
			"recent_message_id": c.RecentMessageID,
		},
		"$currentDate": bson.M{"created_date": true},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return err
	}
	if res.UpsertedCount == 0 {
		return fmt.Errorf("conversation %s already exists", c.ID)
	}
	return nil
}

// FindByID find conversation by id
func (r *conversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.coll.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindDirect find the conversation whose participants are exactly userA and userB
func (r *conversationRepository) FindDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	filter := bson.M{
		"participant_ids": bson.M{
			"$all":  []string{userA, userB},
			"$size": 2,
		},
	}
	var c domain.Conversation
	err := r.coll.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: direct conversation %s/%s", domain.ErrNotFound, userA, userB)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateRecentMessage set recent_message_id
func (r *conversationRepository) UpdateRecentMessage(ctx context.Context, conversationID, messageID string) error {
	return r.set(ctx, conversationID, bson.M{"recent_message_id": messageID})
}

// UpdateParticipants replace participant_ids
func (r *conversationRepository) UpdateParticipants(ctx context.Context, conversationID string, participantIDs []string) error {
	return r.set(ctx, conversationID, bson.M{"participant_ids": participantIDs})
}

func (r *conversationRepository) set(ctx context.Context, conversationID string, fields bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": conversationID}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
	}
	return nil
}

// DeleteConversation delete conversation document
func (r *conversationRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": conversationID})
	return err
}

// WatchByParticipant live query of the conversations a user belongs to
func (r *conversationRepository) WatchByParticipant(ctx context.Context, userID string) (Subscription[domain.Conversation], error) {
	return watchCollection(ctx, r.coll, watchQuery[domain.Conversation]{
		filter: bson.M{"participant_ids": userID},
		match: bson.M{"$or": bson.A{
			bson.M{"fullDocument.participant_ids": userID},
			bson.M{"operationType": "delete"},
		}},
		sort:   bson.D{{Key: "created_date", Value: -1}},
		id:     func(c *domain.Conversation) string { return c.ID },
		buffer: r.buffer,
	})
}
