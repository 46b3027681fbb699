package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository stores messages in a MongoDB collection.
type MessageRepository struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

func NewMessageRepository(coll *mongo.Collection, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{coll: coll, logger: logger.With("repository", "mongo_messages")}
}

// EnsureIndexes creates the indexes used by the feed and search queries.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("chat_timestamp_idx"),
		},
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "content", Value: 1}},
			Options: options.Index().SetName("chat_content_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

// Create upserts on a fresh id so a retried write cannot duplicate the message, and lets
// the server stamp the timestamp.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	doc := toDocument(msg)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Timestamp = time.Time{}

	update := bson.M{
		"$setOnInsert": doc,
		"$currentDate": bson.M{"timestamp": bson.M{"$type": "date"}},
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": doc.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	r.logger.DebugContext(ctx, "Message inserted", "message_id", doc.ID, "chat_id", doc.ChatID)
	return r.GetByID(ctx, doc.ID)
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var doc messageDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find message %s: %w", id, err)
	}
	return doc.toDomain(), nil
}

func (r *MessageRepository) AdvanceStatus(ctx context.Context, id string, next domain.Status) (bool, error) {
	lower := domain.StatusesBelow(next)
	if len(lower) == 0 {
		return false, nil
	}
	set := bson.M{"status": string(next)}
	if next == domain.StatusRead {
		set["is_read"] = true
	}
	filter := bson.M{"_id": id, "status": bson.M{"$in": statusStrings(lower)}}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("advance status of %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return false, r.existsOrNotFound(ctx, id)
	}
	return true, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id string) (bool, error) {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"is_read": false},
			bson.M{"status": bson.M{"$ne": string(domain.StatusRead)}},
		},
	}
	update := bson.M{"$set": bson.M{"is_read": true, "status": string(domain.StatusRead)}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mark %s read: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return false, r.existsOrNotFound(ctx, id)
	}
	return true, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	msgs, err := r.find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list recent messages of %s: %w", chatID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepository) SearchContentRange(ctx context.Context, chatID, lo, hi string, limit int) ([]*domain.Message, error) {
	filter := bson.M{
		"chat_id": chatID,
		"content": bson.M{"$gte": lo, "$lt": hi},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "content", Value: 1}, {Key: "timestamp", Value: 1}}).
		SetLimit(int64(limit))
	msgs, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("search messages of %s: %w", chatID, err)
	}
	return msgs, nil
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*domain.Message{}
	for cur.Next(ctx) {
		var doc messageDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cur.Err()
}

func (r *MessageRepository) existsOrNotFound(ctx context.Context, id string) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check message %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func statusStrings(in []domain.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
