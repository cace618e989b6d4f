package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chat_sync_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Subscription definition a live query that delivers delta batches until closed.
// The first batch is the current query result as ChangeAdded deltas.
type Subscription[T any] interface {
	// Changes closes when the subscription ends, Err tells why
	Changes() <-chan []domain.Change[T]
	// Err terminal error, nil after a normal Close
	Err() error
	Close() error
}

// watchQuery describes one live query over a collection
type watchQuery[T any] struct {
	filter bson.M // snapshot filter
	match  bson.M // change stream $match stage
	sort   bson.D
	id     func(*T) string
	buffer int
}

type changeEvent[T any] struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *T `bson:"fullDocument"`
}

type changeStreamSubscription[T any] struct {
	changes chan []domain.Change[T]
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

// watchCollection opens the change stream before reading the snapshot so no write falls between them.
// A write seen by both arrives twice; consumers de-duplicate by id.
func watchCollection[T any](ctx context.Context, coll *mongo.Collection, q watchQuery[T]) (Subscription[T], error) {
	ctx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: q.match}}}
	cs, err := coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open change stream on %s: %w", coll.Name(), err)
	}

	cur, err := coll.Find(ctx, q.filter, options.Find().SetSort(q.sort))
	if err != nil {
		cs.Close(context.Background())
		cancel()
		return nil, fmt.Errorf("snapshot %s: %w", coll.Name(), err)
	}
	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		cs.Close(context.Background())
		cancel()
		return nil, fmt.Errorf("decode snapshot %s: %w", coll.Name(), err)
	}

	snapshot := make([]domain.Change[T], 0, len(docs))
	for i := range docs {
		doc := docs[i]
		snapshot = append(snapshot, domain.Change[T]{Type: domain.ChangeAdded, ID: q.id(&doc), Doc: &doc})
	}

	buffer := q.buffer
	if buffer <= 0 {
		buffer = 1
	}
	s := &changeStreamSubscription[T]{
		changes: make(chan []domain.Change[T], buffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, cs, snapshot)
	return s, nil
}

func (s *changeStreamSubscription[T]) run(ctx context.Context, cs *mongo.ChangeStream, snapshot []domain.Change[T]) {
	defer close(s.done)
	defer close(s.changes)
	defer cs.Close(context.Background())

	if !s.deliver(ctx, snapshot) {
		return
	}

	for cs.Next(ctx) {
		// 同一個 server batch 內的事件合併成一次通知
		batch := make([]domain.Change[T], 0, cs.RemainingBatchLength()+1)
		for {
			change, skip, err := decodeChange[T](cs)
			if err != nil {
				s.setErr(err)
				return
			}
			if !skip {
				batch = append(batch, change)
			}
			if cs.RemainingBatchLength() == 0 || !cs.Next(ctx) {
				break
			}
		}
		if len(batch) == 0 {
			continue
		}
		if !s.deliver(ctx, batch) {
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := cs.Err(); err != nil {
		s.setErr(err)
		return
	}
	s.setErr(errors.New("change stream closed by server"))
}

func decodeChange[T any](cs *mongo.ChangeStream) (domain.Change[T], bool, error) {
	var ev changeEvent[T]
	if err := cs.Decode(&ev); err != nil {
		return domain.Change[T]{}, false, fmt.Errorf("decode change event: %w", err)
	}

	switch ev.OperationType {
	case "insert":
		return domain.Change[T]{Type: domain.ChangeAdded, ID: ev.DocumentKey.ID, Doc: ev.FullDocument}, ev.FullDocument == nil, nil
	case "update", "replace":
		// fullDocument 為 nil 代表文件已被刪除, 等 delete 事件
		return domain.Change[T]{Type: domain.ChangeModified, ID: ev.DocumentKey.ID, Doc: ev.FullDocument}, ev.FullDocument == nil, nil
	case "delete":
		return domain.Change[T]{Type: domain.ChangeRemoved, ID: ev.DocumentKey.ID}, false, nil
	case "invalidate", "drop", "dropDatabase", "rename":
		return domain.Change[T]{}, false, fmt.Errorf("change stream invalidated by %s", ev.OperationType)
	default:
		return domain.Change[T]{}, true, nil
	}
}

func (s *changeStreamSubscription[T]) deliver(ctx context.Context, batch []domain.Change[T]) bool {
	select {
	case s.changes <- batch:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *changeStreamSubscription[T]) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Changes delta batches
func (s *changeStreamSubscription[T]) Changes() <-chan []domain.Change[T] {
	return s.changes
}

// Err terminal error
func (s *changeStreamSubscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery and waits for the reader goroutine
func (s *changeStreamSubscription[T]) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}
