package repository

import (
	"context"
	"fmt"

	"chat_sync_service/internal/chat/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository definition message documents
type MessageRepository interface {
	NewID() string
	// InsertMessage 寫入一筆訊息, sent_date 由 server 指定
	InsertMessage(ctx context.Context, m *domain.Message) error
	ListMessageIDs(ctx context.Context, chatID string) ([]string, error)
	// DeleteBatch 刪除同一聊天室內的一批訊息
	DeleteBatch(ctx context.Context, chatID string, messageIDs []string) error
	WatchByChat(ctx context.Context, chatID string) (Subscription[domain.Message], error)
}

type messageRepository struct {
	coll   *mongo.Collection
	buffer int
}

// NewMongoMessageRepository create a MessageRepository
func NewMongoMessageRepository(db *mongo.Database, streamBuffer int) MessageRepository {
	return &messageRepository{
		coll:   db.Collection(string(domain.Messages)),
		buffer: streamBuffer,
	}
}

// EnsureIndexes create the (chat_id, sent_date) index used by streaming and cascading delete
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(string(domain.Messages)).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "sent_date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	_, err = db.Collection(string(domain.Conversations)).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participant_ids", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create conversations index: %w", err)
	}
	return nil
}

// NewID generate a message id
func (r *messageRepository) NewID() string {
	return uuid.New().String()
}

func (r *messageRepository) InsertMessage(ctx context.Context, m *domain.Message) error {
	filter := bson.M{"_id": m.ID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"chat_id":   m.ChatID,
			"sender_id": m.SenderID,
			"content":   m.Content,
		},
		"$currentDate": bson.M{"sent_date": true},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return err
	}
	if res.UpsertedCount == 0 {
		return fmt.Errorf("message %s already exists", m.ID)
	}
	return nil
}

func (r *messageRepository) ListMessageIDs(ctx context.Context, chatID string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "sent_date", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *messageRepository) DeleteBatch(ctx context.Context, chatID string, messageIDs []string) error {
	filter := bson.M{
		"chat_id": chatID,
		"_id":     bson.M{"$in": messageIDs},
	}
	_, err := r.coll.DeleteMany(ctx, filter)
	return err
}

// WatchByChat live query of one conversation's messages ordered by sent_date
func (r *messageRepository) WatchByChat(ctx context.Context, chatID string) (Subscription[domain.Message], error) {
	return watchCollection(ctx, r.coll, watchQuery[domain.Message]{
		filter: bson.M{"chat_id": chatID},
		// delete 事件沒有 fullDocument, 交給 stream 依已知 id 過濾
		match: bson.M{"$or": bson.A{
			bson.M{"fullDocument.chat_id": chatID},
			bson.M{"operationType": "delete"},
		}},
		sort:   bson.D{{Key: "sent_date", Value: 1}, {Key: "_id", Value: 1}},
		id:     func(m *domain.Message) string { return m.ID },
		buffer: r.buffer,
	})
}
