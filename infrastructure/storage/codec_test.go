package storage

import (
	"chat-relay/domain"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec_Message_KeepsAbsentMediaAbsent(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 3, 1, 10, 0, 0, 123, time.UTC)
	original := domain.NewMessage("alice", domain.Content{AudioURL: lo.ToPtr("https://cdn/a.ogg")}, at)
	original.Seq = 42

	decoded, err := decodeMessage(encodeMessage(original))

	req.NoError(err)
	req.Equal(original.ID, decoded.ID)
	req.Equal(uint64(42), decoded.Seq)
	req.Equal("", decoded.Text)
	req.Equal("https://cdn/a.ogg", lo.FromPtr(decoded.AudioURL))
	req.Nil(decoded.VideoURL)
	req.False(decoded.Seen)
	req.True(at.Equal(decoded.Timestamp))
}

func TestCodec_Message_SkipsUnknownFields(t *testing.T) {
	req := require.New(t)
	original := domain.NewMessage("bob", domain.Content{Text: lo.ToPtr("hi")}, time.Now())

	b := encodeMessage(original)
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer version")

	decoded, err := decodeMessage(b)
	req.NoError(err)
	req.Equal("hi", decoded.Text)
	req.Equal("bob", decoded.Username)
}

func TestCodec_Thread_Truncated(t *testing.T) {
	req := require.New(t)
	b := encodeThread(domain.Thread{Key: domain.DirectThread("a", "b"), Length: 3, CreatedAt: time.Now()})

	_, err := decodeThread(b[:len(b)-1])
	req.Error(err)
}
