package websocket

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	relayerr "chat-relay/errors"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_SenderIsConnectionUsername(t *testing.T) {
	req := require.New(t)

	cmd, err := decodePayload("alice", Envelope{
		Type:    TypeRoomMessage,
		Payload: json.RawMessage(`{"room":"general","text":"hi","username":"mallory"}`),
	})

	req.NoError(err)
	req.Equal(domain.RoomMessageCommand{
		Room:    "general",
		From:    "alice",
		Content: domain.Content{Text: lo.ToPtr("hi")},
	}, cmd)
}

func TestDecodePayload_HistoryThreadSelection(t *testing.T) {
	req := require.New(t)

	cmd, err := decodePayload("bob", Envelope{Type: TypeHistory, Payload: json.RawMessage(`{"with":"alice","cursor":"0000000000000000003"}`)})
	req.NoError(err)
	query := cmd.(domain.HistoryQuery)
	req.Equal(domain.DirectThread("alice", "bob"), query.Key)
	req.Equal("0000000000000000003", lo.FromPtr(query.Cursor))

	cmd, err = decodePayload("bob", Envelope{Type: TypeSearch, Payload: json.RawMessage(`{"room":"general","query":"deploy"}`)})
	req.NoError(err)
	req.Equal(domain.RoomThread("general"), cmd.(domain.SearchQuery).Key)

	cmd, err = decodePayload("bob", Envelope{Type: TypeHistory, Payload: json.RawMessage(`{}`)})
	req.NoError(err)
	req.ErrorIs(domain.Validate(cmd), relayerr.ErrMalformedEvent)
}

func TestDecodePayload_Malformed(t *testing.T) {
	req := require.New(t)

	_, err := decodePayload("alice", Envelope{Type: "unknown", Payload: json.RawMessage(`{}`)})
	req.ErrorIs(err, relayerr.ErrMalformedEvent)

	_, err = decodePayload("alice", Envelope{Type: TypeJoinRoom, Payload: json.RawMessage(`{"room":42}`)})
	req.ErrorIs(err, relayerr.ErrMalformedEvent)
}

func TestEncodeEvent_RoomMessageKeepsNullMedia(t *testing.T) {
	req := require.New(t)
	message := domain.NewMessage("alice", domain.Content{Text: lo.ToPtr("hi")}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	raw, err := encodeEvent(event.RoomMessageDelivered{Room: "general", Message: message})
	req.NoError(err)

	var env struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	req.NoError(json.Unmarshal(raw, &env))
	req.Equal("message", env.Type)
	req.Equal("hi", env.Payload["text"])
	req.Equal("alice", env.Payload["username"])
	req.Equal(false, env.Payload["seen"])
	req.Contains(env.Payload, "audioUrl")
	req.Nil(env.Payload["audioUrl"])
	req.Nil(env.Payload["videoUrl"])
	req.Equal("2024-01-02T03:04:05Z", env.Payload["timestamp"])
}

func TestEncodeEvent_InternalEventsNeverLeave(t *testing.T) {
	req := require.New(t)

	_, err := encodeEvent(event.MessagePersisted{})

	req.ErrorIs(err, errUnknownType)
}

func TestFailureFor(t *testing.T) {
	req := require.New(t)

	req.Equal(CodeAnonymousSender, failureFor(relayerr.ErrAnonymousSender).Code)
	req.Equal(CodeMalformedEvent, failureFor(relayerr.Malformed(fmt.Errorf("bad"))).Code)
	req.Equal(CodeStorageError, failureFor(relayerr.NewStorageError("append", fmt.Errorf("io"))).Code)
	req.Equal(CodeForbidden, failureFor(relayerr.ErrForbiddenThread).Code)
	req.Equal(CodeInternal, failureFor(fmt.Errorf("boom")).Code)
}
