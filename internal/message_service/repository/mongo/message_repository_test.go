package mongo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func storedMessage(id, chatID, content string, at time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "sender_id", Value: "alice"},
		{Key: "chat_id", Value: chatID},
		{Key: "type", Value: "text"},
		{Key: "content", Value: content},
		{Key: "metadata", Value: bson.D{}},
		{Key: "timestamp", Value: at},
		{Key: "status", Value: "delivered"},
		{Key: "is_read", Value: false},
		{Key: "self_destruct_seconds", Value: 0},
	}
}

func TestDocumentMapping(t *testing.T) {
	size := int64(2048)
	msg := &domain.Message{
		ID:       "m1",
		SenderID: "alice",
		ChatID:   "c1",
		Type:     domain.MessageTypeImage,
		Content:  "memory://blobs/media/1_cat.png",
		Metadata: domain.Metadata{
			Name:         "cat.png",
			Size:         &size,
			MimeType:     "image/png",
			ThumbnailURL: "memory://blobs/media/1_thumb_cat.jpg",
		},
		Timestamp:           time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:              domain.StatusDelivered,
		SelfDestructSeconds: 30,
		ReplyToID:           "m0",
	}

	raw, err := bson.Marshal(toDocument(msg))
	require.NoError(t, err)

	var back messageDocument
	require.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, msg, back.toDomain())

	t.Run("zero timestamp is omitted", func(t *testing.T) {
		doc := toDocument(&domain.Message{ID: "m2", Type: domain.MessageTypeText})
		raw, err := bson.Marshal(doc)
		require.NoError(t, err)
		_, lookupErr := bson.Raw(raw).LookupErr("timestamp")
		assert.Error(t, lookupErr)
	})
}

func TestChangeDocument_ToEvent(t *testing.T) {
	decode := func(t *testing.T, d bson.D) changeDocument {
		raw, err := bson.Marshal(d)
		require.NoError(t, err)
		var doc changeDocument
		require.NoError(t, bson.Unmarshal(raw, &doc))
		return doc
	}

	t.Run("insert carries chat from full document", func(t *testing.T) {
		doc := decode(t, bson.D{
			{Key: "operationType", Value: "insert"},
			{Key: "documentKey", Value: bson.D{{Key: "_id", Value: "m1"}}},
			{Key: "fullDocument", Value: bson.D{{Key: "chat_id", Value: "c1"}}},
		})
		ev, ok := doc.toEvent()
		require.True(t, ok)
		assert.Equal(t, domain.ChangeEvent{Op: domain.ChangeInsert, ChatID: "c1", MessageID: "m1"}, ev)
	})

	t.Run("delete falls back to pre-image", func(t *testing.T) {
		doc := decode(t, bson.D{
			{Key: "operationType", Value: "delete"},
			{Key: "documentKey", Value: bson.D{{Key: "_id", Value: "m1"}}},
			{Key: "fullDocumentBeforeChange", Value: bson.D{{Key: "chat_id", Value: "c9"}}},
		})
		ev, ok := doc.toEvent()
		require.True(t, ok)
		assert.Equal(t, domain.ChangeEvent{Op: domain.ChangeDelete, ChatID: "c9", MessageID: "m1"}, ev)
	})

	t.Run("delete without pre-image refreshes all", func(t *testing.T) {
		doc := decode(t, bson.D{
			{Key: "operationType", Value: "delete"},
			{Key: "documentKey", Value: bson.D{{Key: "_id", Value: "m1"}}},
		})
		ev, ok := doc.toEvent()
		require.True(t, ok)
		assert.Empty(t, ev.ChatID)
	})

	t.Run("drop refreshes all", func(t *testing.T) {
		ev, ok := decode(t, bson.D{{Key: "operationType", Value: "drop"}}).toEvent()
		require.True(t, ok)
		assert.Empty(t, ev.ChatID)
	})

	t.Run("unknown operation is skipped", func(t *testing.T) {
		_, ok := decode(t, bson.D{{Key: "operationType", Value: "createIndexes"}}).toEvent()
		assert.False(t, ok)
	})
}

func TestMessageRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("GetByID", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			storedMessage("m1", "c1", "aGVsbG8=", at)))

		msg, err := repo.GetByID(context.Background(), "m1")
		require.NoError(mt, err)
		assert.Equal(mt, "c1", msg.ChatID)
		assert.Equal(mt, domain.StatusDelivered, msg.Status)
		assert.True(mt, at.Equal(msg.Timestamp))
	})

	mt.Run("GetByID not found", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := repo.GetByID(context.Background(), "missing")
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("Create reads back stored copy", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
				storedMessage("m1", "c1", "aGVsbG8=", at)),
		)

		msg, err := repo.Create(context.Background(), &domain.Message{
			ID: "m1", SenderID: "alice", ChatID: "c1", Type: domain.MessageTypeText, Content: "aGVsbG8=",
		})
		require.NoError(mt, err)
		assert.Equal(mt, "m1", msg.ID)
		assert.False(mt, msg.Timestamp.IsZero())
	})

	mt.Run("AdvanceStatus applied", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		changed, err := repo.AdvanceStatus(context.Background(), "m1", domain.StatusDelivered)
		require.NoError(mt, err)
		assert.True(mt, changed)
	})

	mt.Run("AdvanceStatus already past", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: 1}}),
		)

		changed, err := repo.AdvanceStatus(context.Background(), "m1", domain.StatusDelivered)
		require.NoError(mt, err)
		assert.False(mt, changed)
	})

	mt.Run("AdvanceStatus missing message", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch),
		)

		_, err := repo.AdvanceStatus(context.Background(), "gone", domain.StatusRead)
		assert.ErrorIs(mt, err, domain.ErrNotFound)
	})

	mt.Run("AdvanceStatus to sent is never a change", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		changed, err := repo.AdvanceStatus(context.Background(), "m1", domain.StatusSent)
		require.NoError(mt, err)
		assert.False(mt, changed)
	})

	mt.Run("MarkRead", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		changed, err := repo.MarkRead(context.Background(), "m1")
		require.NoError(mt, err)
		assert.True(mt, changed)
	})

	mt.Run("Delete", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		require.NoError(mt, repo.Delete(context.Background(), "m1"))
		assert.ErrorIs(mt, repo.Delete(context.Background(), "m1"), domain.ErrNotFound)
	})

	mt.Run("ListRecent returns ascending order", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			storedMessage("m3", "c1", "Yw==", at.Add(2*time.Second)),
			storedMessage("m2", "c1", "Yg==", at.Add(time.Second)),
			storedMessage("m1", "c1", "YQ==", at),
		))

		msgs, err := repo.ListRecent(context.Background(), "c1", domain.FeedLimit)
		require.NoError(mt, err)
		require.Len(mt, msgs, 3)
		assert.Equal(mt, []string{"m1", "m2", "m3"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	})

	mt.Run("SearchContentRange", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			storedMessage("m1", "c1", "aGVsbG8=", at)))

		msgs, err := repo.SearchContentRange(context.Background(), "c1", "aGVs", "aGVs"+domain.SearchSentinel, domain.SearchLimit)
		require.NoError(mt, err)
		require.Len(mt, msgs, 1)
		assert.Equal(mt, "m1", msgs[0].ID)
	})

	mt.Run("write error surfaces", func(mt *mtest.T) {
		repo := NewMessageRepository(mt.Coll, discardLogger())
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key",
		}))

		_, err := repo.MarkRead(context.Background(), "m1")
		assert.Error(mt, err)
		assert.NotErrorIs(mt, err, domain.ErrNotFound)
	})
}
