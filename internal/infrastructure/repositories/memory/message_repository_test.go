package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"parley/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessages(t *testing.T, repo *MemoryMessageRepository, channelID domain.ChannelID, n int) []domain.MessageID {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	ids := make([]domain.MessageID, n)
	for i := range ids {
		ids[i] = domain.MessageID(fmt.Sprintf("%s-msg-%02d", channelID, i))
		require.NoError(t, repo.Save(context.Background(), &domain.Message{
			ID:        ids[i],
			ServerID:  "srv",
			ChannelID: channelID,
			Author:    "alice",
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	return ids
}

func TestMessageSaveAndGet(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()
	ids := seedMessages(t, repo, "ch", 1)

	msg, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "message 0", msg.Content)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestMessageUpdateUnknownID(t *testing.T) {
	repo := NewMemoryMessageRepository()
	err := repo.Update(context.Background(), &domain.Message{ID: "missing", ChannelID: "ch"})
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestMessageListBeforeEmptyCursorReturnsNewest(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()
	ids := seedMessages(t, repo, "ch", 5)

	out, err := repo.ListBefore(ctx, "ch", "", 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	// newest three, oldest first
	assert.Equal(t, ids[2], out[0].ID)
	assert.Equal(t, ids[3], out[1].ID)
	assert.Equal(t, ids[4], out[2].ID)
}

func TestMessageListBeforeCursorPagesBackwards(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()
	ids := seedMessages(t, repo, "ch", 5)

	out, err := repo.ListBefore(ctx, "ch", ids[2], 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ids[0], out[0].ID)
	assert.Equal(t, ids[1], out[1].ID)

	// the oldest message has nothing before it
	out, err = repo.ListBefore(ctx, "ch", ids[0], 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMessageListBeforeUnknownCursor(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()
	seedMessages(t, repo, "ch", 2)

	_, err := repo.ListBefore(ctx, "ch", "not-there", 10)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestMessageListBeforeSkipsDeleted(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()
	ids := seedMessages(t, repo, "ch", 4)

	deleted, err := repo.GetByID(ctx, ids[2])
	require.NoError(t, err)
	deleted.Deleted = true
	deleted.Content = ""
	require.NoError(t, repo.Update(ctx, deleted))

	out, err := repo.ListBefore(ctx, "ch", "", 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, msg := range out {
		assert.NotEqual(t, ids[2], msg.ID)
	}

	// the tombstone still works as a paging cursor
	out, err = repo.ListBefore(ctx, "ch", ids[2], 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ids[0], out[0].ID)
}

func TestMessageListBeforeEmptyChannel(t *testing.T) {
	repo := NewMemoryMessageRepository()
	out, err := repo.ListBefore(context.Background(), "empty", "", 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMessageDeleteByChannel(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()
	ids := seedMessages(t, repo, "ch", 3)
	other := seedMessages(t, repo, "other", 1)

	require.NoError(t, repo.DeleteByChannel(ctx, "ch"))

	_, err := repo.GetByID(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	// messages of other channels survive
	_, err = repo.GetByID(ctx, other[0])
	assert.NoError(t, err)
}

func TestMessageGetReturnsACopy(t *testing.T) {
	repo := NewMemoryMessageRepository()
	ctx := context.Background()
	ids := seedMessages(t, repo, "ch", 1)

	first, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	first.Content = "tampered"

	second, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "message 0", second.Content)
}
