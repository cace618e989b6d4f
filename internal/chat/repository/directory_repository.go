package repository

import (
	"context"
	"errors"
	"fmt"

	"chat_sync_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DirectoryRepository definition user directory entries
type DirectoryRepository interface {
	FindByID(ctx context.Context, userID string) (*domain.DirectoryEntry, error)
	// FindByIDs membership query, caller keeps len(userIDs) within the store limit
	FindByIDs(ctx context.Context, userIDs []string) ([]domain.DirectoryEntry, error)
	FindAll(ctx context.Context) ([]domain.DirectoryEntry, error)
	AddChatID(ctx context.Context, userID, chatID string) error
	RemoveChatID(ctx context.Context, userID, chatID string) error
}

type directoryRepository struct {
	coll *mongo.Collection
}

// NewMongoDirectoryRepository create new mongo directory repository
func NewMongoDirectoryRepository(db *mongo.Database) DirectoryRepository {
	return &directoryRepository{
		coll: db.Collection(string(domain.Users)),
	}
}

func (r *directoryRepository) FindByID(ctx context.Context, userID string) (*domain.DirectoryEntry, error) {
	var e domain.DirectoryEntry
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *directoryRepository) FindByIDs(ctx context.Context, userIDs []string) ([]domain.DirectoryEntry, error) {
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	var entries []domain.DirectoryEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FindAll 全表掃描, 依建立時間排序
func (r *directoryRepository) FindAll(ctx context.Context) ([]domain.DirectoryEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_date", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var entries []domain.DirectoryEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AddChatID append chat id to user's chat_ids
func (r *directoryRepository) AddChatID(ctx context.Context, userID, chatID string) error {
	return r.update(ctx, userID, bson.M{"$addToSet": bson.M{"chat_ids": chatID}})
}

// RemoveChatID remove chat id from user's chat_ids
func (r *directoryRepository) RemoveChatID(ctx context.Context, userID, chatID string) error {
	return r.update(ctx, userID, bson.M{"$pull": bson.M{"chat_ids": chatID}})
}

func (r *directoryRepository) update(ctx context.Context, userID string, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	return nil
}
