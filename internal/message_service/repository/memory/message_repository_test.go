package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newText(chatID, sender, content string) *domain.Message {
	return &domain.Message{
		SenderID: sender,
		ChatID:   chatID,
		Type:     domain.MessageTypeText,
		Content:  content,
		Status:   domain.StatusSent,
	}
}

func TestMessageRepository_CreateAssignsIDAndMonotonicTimestamp(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewMessageRepository(WithNow(func() time.Time { return fixed }))

	a, err := repo.Create(ctx, newText("c1", "u1", "a"))
	require.NoError(t, err)
	b, err := repo.Create(ctx, newText("c1", "u1", "b"))
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, b.Timestamp.After(a.Timestamp))
}

func TestMessageRepository_StatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	m, err := repo.Create(ctx, newText("c1", "u1", "x"))
	require.NoError(t, err)

	changed, err := repo.AdvanceStatus(ctx, m.ID, domain.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.AdvanceStatus(ctx, m.ID, domain.StatusSent)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, got.Status)

	_, err = repo.AdvanceStatus(ctx, "missing", domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessageRepository_MarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	m, err := repo.Create(ctx, newText("c1", "u1", "x"))
	require.NoError(t, err)

	changed, err := repo.MarkRead(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	first, _ := repo.GetByID(ctx, m.ID)

	changed, err = repo.MarkRead(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	second, _ := repo.GetByID(ctx, m.ID)

	assert.Equal(t, first, second)
	assert.True(t, second.IsRead)
	assert.Equal(t, domain.StatusRead, second.Status)

	// delivered after read is ignored
	changed, err = repo.AdvanceStatus(ctx, m.ID, domain.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMessageRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	m, err := repo.Create(ctx, newText("c1", "u1", "x"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, m.ID))
	assert.ErrorIs(t, repo.Delete(ctx, m.ID), domain.ErrNotFound)
	_, err = repo.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessageRepository_ListRecentReturnsNewestAscending(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, newText("c1", "u1", fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, newText("other", "u1", "elsewhere"))
	require.NoError(t, err)

	got, err := repo.ListRecent(ctx, "c1", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Content)
	assert.Equal(t, "m4", got[2].Content)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))
}

func TestMessageRepository_SearchContentRange(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository()
	for _, c := range []string{"abd", "abc", "abcz", "ab", "xyz"} {
		_, err := repo.Create(ctx, newText("c1", "u1", c))
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, newText("c2", "u1", "abc-other-chat"))
	require.NoError(t, err)

	got, err := repo.SearchContentRange(ctx, "c1", "abc", "abc"+domain.SearchSentinel, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "abc", got[0].Content)
	assert.Equal(t, "abcz", got[1].Content)

	limited, err := repo.SearchContentRange(ctx, "c1", "a", "a"+domain.SearchSentinel, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMessageRepository_Changes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := NewMessageRepository()

	ch, err := repo.Changes(ctx)
	require.NoError(t, err)

	m, err := repo.Create(ctx, newText("c1", "u1", "x"))
	require.NoError(t, err)
	_, err = repo.AdvanceStatus(ctx, m.ID, domain.StatusDelivered)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, m.ID))

	var ops []domain.ChangeOp
	for len(ops) < 3 {
		select {
		case ev := <-ch:
			assert.Equal(t, "c1", ev.ChatID)
			assert.Equal(t, m.ID, ev.MessageID)
			ops = append(ops, ev.Op)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change events")
		}
	}
	assert.Equal(t, []domain.ChangeOp{domain.ChangeInsert, domain.ChangeUpdate, domain.ChangeDelete}, ops)

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("change channel not closed after cancel")
	}
}
