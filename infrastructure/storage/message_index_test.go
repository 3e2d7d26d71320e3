package storage

import (
	"chat-relay/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewMessageIndex(writer, slog.Default(), 10)
}

func TestMessageIndex_Search_FindsMessageInThread(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	ctx := context.Background()
	key := domain.RoomThread("general")

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	message := domain.NewMessage("alice", domain.Content{Text: lo.ToPtr("The deployment is finished")}, at)
	message.Seq = 7
	req.NoError(index.Index(ctx, key, message))
	req.NoError(index.Index(ctx, key, domain.NewMessage("bob", domain.Content{Text: lo.ToPtr("lunch?")}, at)))

	hits, err := index.Search(ctx, key, "deployment")

	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(message.ID, hits[0].MessageID)
	req.Equal("alice", hits[0].Username)
	req.Equal("The deployment is finished", hits[0].Text)
	req.Equal(uint64(7), hits[0].Seq)
	req.True(at.Equal(hits[0].Timestamp))
	req.Greater(hits[0].Score, 0.0)
}

func TestMessageIndex_Search_IsScopedToThread(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	ctx := context.Background()

	req.NoError(index.Index(ctx, domain.DirectThread("alice", "bob"),
		domain.NewMessage("alice", domain.Content{Text: lo.ToPtr("secret plan")}, time.Now())))

	hits, err := index.Search(ctx, domain.RoomThread("general"), "secret")
	req.NoError(err)
	req.Empty(hits)

	hits, err = index.Search(ctx, domain.DirectThread("bob", "alice"), "secret")
	req.NoError(err)
	req.Len(hits, 1)
}

func TestMessageIndex_Index_SkipsMediaOnlyMessages(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)
	ctx := context.Background()
	key := domain.RoomThread("general")

	req.NoError(index.Index(ctx, key,
		domain.NewMessage("alice", domain.Content{VideoURL: lo.ToPtr("https://cdn/v.mp4")}, time.Now())))

	hits, err := index.Search(ctx, key, "cdn")
	req.NoError(err)
	req.Empty(hits)
}

func TestMessageIndex_Search_EmptyQuery(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)

	hits, err := index.Search(context.Background(), domain.RoomThread("general"), "  ")
	req.NoError(err)
	req.Empty(hits)
}
