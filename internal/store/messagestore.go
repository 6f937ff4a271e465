package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lgrondin/tchatbox-backend/internal/models"
)

// MessageStore is the durable message log. Broadcast messages are capped to
// the most recent BroadcastHistoryLimit entries; private messages are kept
// unbounded.
type MessageStore interface {
	Append(ctx context.Context, m models.Message) error
	Delete(ctx context.Context, id string) error
	TrimBroadcast(ctx context.Context, keep int) error
	LoadBroadcast(ctx context.Context, limit int) ([]models.Message, error)
	LoadPrivateWith(ctx context.Context, pseudo string) ([]models.Message, error)
}

// BroadcastHistoryLimit caps the retained broadcast log.
const BroadcastHistoryLimit = 200

const (
	messagesCollection = "messages"

	recentBroadcastKey = "chat:broadcast:recent"
	recentBroadcastTTL = 1 * time.Hour
)

// MongoMessageStore persists the message log in MongoDB, with an optional
// Redis list mirroring the recent broadcast history for fast warm starts.
type MongoMessageStore struct {
	col   *mongo.Collection
	redis *redis.Client // nil disables the cache
}

func NewMongoMessageStore(db *mongo.Database, rdb *redis.Client) *MongoMessageStore {
	return &MongoMessageStore{col: db.Collection(messagesCollection), redis: rdb}
}

// EnsureMessageIndexes configures indexes for the messages collection.
// Called on startup from main after Mongo has connected.
func EnsureMessageIndexes(ctx context.Context, db *mongo.Database) error {
	col := db.Collection(messagesCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_message_id").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "to", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetName("idx_to_date"),
		},
		{
			Keys: bson.D{
				{Key: "from", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetName("idx_from_date"),
		},
	}

	for _, m := range indexes {
		if _, err := col.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoMessageStore) Append(ctx context.Context, m models.Message) error {
	if _, err := s.col.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("append message %s: %w", m.ID, err)
	}
	if m.IsBroadcast() {
		s.pushRecent(ctx, m)
	}
	return nil
}

func (s *MongoMessageStore) Delete(ctx context.Context, id string) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"id": id}); err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	s.dropRecent(ctx)
	return nil
}

// TrimBroadcast evicts the oldest broadcast entries beyond keep.
func (s *MongoMessageStore) TrimBroadcast(ctx context.Context, keep int) error {
	filter := bson.M{"to": models.BroadcastTarget}

	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return err
	}
	excess := total - int64(keep)
	if excess <= 0 {
		return nil
	}

	// Oldest first, delete exactly the overflow.
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}}).
		SetLimit(excess).
		SetProjection(bson.M{"id": 1})

	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"id"`
		}
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	_, err = s.col.DeleteMany(ctx, bson.M{"id": bson.M{"$in": ids}})
	return err
}

// LoadBroadcast returns the most recent broadcast messages, oldest-first.
// Tries the Redis mirror before falling back to Mongo.
func (s *MongoMessageStore) LoadBroadcast(ctx context.Context, limit int) ([]models.Message, error) {
	if msgs, ok := s.recentFromCache(ctx, limit); ok {
		return msgs, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.col.Find(ctx, bson.M{"to": models.BroadcastTarget}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LoadPrivateWith returns all private messages sent or received by pseudo,
// oldest-first.
func (s *MongoMessageStore) LoadPrivateWith(ctx context.Context, pseudo string) ([]models.Message, error) {
	filter := bson.M{
		"to": bson.M{"$ne": models.BroadcastTarget},
		"$or": bson.A{
			bson.M{"from": pseudo},
			bson.M{"to": pseudo},
		},
	}

	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, cur.Err()
}

// pushRecent mirrors a broadcast message into Redis (newest at head).
// LPUSH + LTRIM keeps the list at the broadcast cap; best-effort.
func (s *MongoMessageStore) pushRecent(ctx context.Context, m models.Message) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	pipe := s.redis.Pipeline()
	pipe.LPush(ctx, recentBroadcastKey, data)
	pipe.LTrim(ctx, recentBroadcastKey, 0, int64(BroadcastHistoryLimit-1))
	pipe.Expire(ctx, recentBroadcastKey, recentBroadcastTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("messagestore: recent cache push failed: %v", err)
	}
}

func (s *MongoMessageStore) dropRecent(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, recentBroadcastKey).Err(); err != nil {
		log.Printf("messagestore: recent cache drop failed: %v", err)
	}
}

// recentFromCache returns broadcast history from the Redis mirror,
// oldest-first. A miss or short list falls through to Mongo.
func (s *MongoMessageStore) recentFromCache(ctx context.Context, limit int) ([]models.Message, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.LRange(ctx, recentBroadcastKey, 0, int64(limit-1)).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	msgs := make([]models.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var m models.Message
		if json.Unmarshal([]byte(raw[i]), &m) != nil {
			return nil, false
		}
		msgs = append(msgs, m)
	}
	return msgs, true
}
