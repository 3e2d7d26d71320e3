package websocket

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	relayerr "chat-relay/errors"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	CodeMalformedEvent  = "malformed_event"
	CodeAnonymousSender = "anonymous_sender"
	CodeStorageError    = "storage_error"
	CodeForbidden       = "forbidden"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal_error"
)

// Inbound event names.
const (
	TypeJoinRoom       = "joinRoom"
	TypePrivateMessage = "privateMessage"
	TypeRoomMessage    = "message"
	TypeHistory        = "history"
	TypeSearch         = "search"
)

var errUnknownType = errors.New("unknown event type")

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoomPayload struct {
	Room string `json:"room"`
}

type PrivateMessagePayload struct {
	To       string  `json:"to"`
	Text     *string `json:"text,omitempty"`
	AudioURL *string `json:"audioUrl,omitempty"`
	VideoURL *string `json:"videoUrl,omitempty"`
}

type RoomMessagePayload struct {
	Room     string  `json:"room"`
	Text     *string `json:"text,omitempty"`
	AudioURL *string `json:"audioUrl,omitempty"`
	VideoURL *string `json:"videoUrl,omitempty"`
}

// HistoryPayload names exactly one thread: a room, or the other participant of a direct thread.
type HistoryPayload struct {
	Room   *string `json:"room,omitempty"`
	With   *string `json:"with,omitempty"`
	Cursor *string `json:"cursor,omitempty"`
}

type SearchPayload struct {
	Room  *string `json:"room,omitempty"`
	With  *string `json:"with,omitempty"`
	Query string  `json:"query"`
}

type PresencePayload struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

type PrivateMessageOut struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AudioURL  *string   `json:"audioUrl"`
	VideoURL  *string   `json:"videoUrl"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageOut struct {
	ID        string    `json:"id"`
	Room      string    `json:"room,omitempty"`
	Text      string    `json:"text"`
	AudioURL  *string   `json:"audioUrl"`
	VideoURL  *string   `json:"videoUrl"`
	Username  string    `json:"username"`
	Seen      bool      `json:"seen"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryOut struct {
	Messages []MessageOut `json:"messages"`
	Cursor   *string      `json:"cursor"`
}

type SearchHitOut struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

type SearchOut struct {
	Query string         `json:"query"`
	Hits  []SearchHitOut `json:"hits"`
}

type ErrorOut struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodePayload turns an inbound frame into a command on behalf of username.
// The sender of a message is always the connection's username, never a client field.
func decodePayload(username string, env Envelope) (domain.Command, error) {
	switch env.Type {
	case TypeJoinRoom:
		var p JoinRoomPayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.JoinRoomCommand{Room: domain.RoomID(p.Room)}, nil
	case TypePrivateMessage:
		var p PrivateMessagePayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.PrivateMessageCommand{
			From:    username,
			To:      p.To,
			Content: domain.Content{Text: p.Text, AudioURL: p.AudioURL, VideoURL: p.VideoURL},
		}, nil
	case TypeRoomMessage:
		var p RoomMessagePayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.RoomMessageCommand{
			Room:    domain.RoomID(p.Room),
			From:    username,
			Content: domain.Content{Text: p.Text, AudioURL: p.AudioURL, VideoURL: p.VideoURL},
		}, nil
	case TypeHistory:
		var p HistoryPayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.HistoryQuery{Requester: username, Key: threadKey(username, p.Room, p.With), Cursor: p.Cursor}, nil
	case TypeSearch:
		var p SearchPayload
		if err := unmarshal(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.SearchQuery{Requester: username, Key: threadKey(username, p.Room, p.With), Query: p.Query}, nil
	default:
		return nil, relayerr.Malformed(fmt.Errorf("%w: %q", errUnknownType, env.Type))
	}
}

func unmarshalEnvelope(frame []byte, env *Envelope) error {
	if err := json.Unmarshal(frame, env); err != nil {
		return relayerr.Malformed(err)
	}
	if env.Type == "" {
		return relayerr.Malformed(errors.New("missing event type"))
	}
	return nil
}

func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return relayerr.Malformed(errors.New("missing payload"))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return relayerr.Malformed(err)
	}
	return nil
}

// threadKey returns an invalid key unless exactly one of room and with is set.
func threadKey(username string, room, with *string) domain.ThreadKey {
	switch {
	case room != nil && with == nil:
		return domain.RoomThread(domain.RoomID(*room))
	case with != nil && room == nil:
		return domain.DirectThread(username, *with)
	default:
		return domain.ThreadKey{}
	}
}

// encodeEvent renders an outbound event as a JSON envelope.
func encodeEvent(e event.DomainEvent) ([]byte, error) {
	var payload any
	switch evt := e.(type) {
	case event.PresenceChanged:
		payload = PresencePayload{Username: evt.Username, Status: string(evt.Status)}
	case event.PrivateMessageDelivered:
		payload = PrivateMessageOut{
			ID:        evt.ID.String(),
			Text:      evt.Text,
			AudioURL:  evt.AudioURL,
			VideoURL:  evt.VideoURL,
			From:      evt.From,
			Timestamp: evt.Timestamp,
		}
	case event.RoomMessageDelivered:
		out := toMessageOut(evt.Message)
		out.Room = evt.Room.String()
		payload = out
	case event.HistoryPage:
		payload = HistoryOut{
			Messages: lo.Map(evt.Messages, func(m domain.Message, _ int) MessageOut { return toMessageOut(m) }),
			Cursor:   evt.Cursor,
		}
	case event.SearchResult:
		payload = SearchOut{
			Query: evt.Query,
			Hits: lo.Map(evt.Hits, func(h domain.SearchHit, _ int) SearchHitOut {
				return SearchHitOut{
					ID:        uuidString(h.MessageID),
					Username:  h.Username,
					Text:      h.Text,
					Timestamp: h.Timestamp,
					Score:     h.Score,
				}
			}),
		}
	case event.Failure:
		payload = ErrorOut{Code: evt.Code, Message: evt.Message}
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownType, e.Type())
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: string(e.Type()), Payload: raw})
}

func toMessageOut(m domain.Message) MessageOut {
	return MessageOut{
		ID:        m.ID.String(),
		Text:      m.Text,
		AudioURL:  m.AudioURL,
		VideoURL:  m.VideoURL,
		Username:  m.Username,
		Seen:      m.Seen,
		Timestamp: m.Timestamp,
	}
}

func uuidString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// failureFor maps an error to the event answered to the sender.
func failureFor(err error) event.Failure {
	switch {
	case errors.Is(err, relayerr.ErrAnonymousSender):
		return event.Failure{Code: CodeAnonymousSender, Message: err.Error()}
	case errors.Is(err, relayerr.ErrMalformedEvent):
		return event.Failure{Code: CodeMalformedEvent, Message: err.Error()}
	case errors.Is(err, relayerr.ErrStorage):
		return event.Failure{Code: CodeStorageError, Message: "message could not be stored"}
	case errors.Is(err, relayerr.ErrForbiddenThread):
		return event.Failure{Code: CodeForbidden, Message: err.Error()}
	default:
		return event.Failure{Code: CodeInternal, Message: "internal error"}
	}
}
