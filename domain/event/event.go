// Package event defines what the relay pushes to live connections.
package event

import (
	"chat-relay/domain"
	"time"

	"github.com/google/uuid"
)

// Type is the wire name of an outbound event.
type Type string

const (
	TypePresenceChanged Type = "updateUserStatus"
	TypePrivateMessage  Type = "privateMessage"
	TypeRoomMessage     Type = "message"
	TypeHistory         Type = "history"
	TypeSearch          Type = "search"
	TypeFailure         Type = "error"
)

type DomainEvent interface {
	Type() Type
}

// PresenceChanged is broadcast to every connection when a user comes online or goes offline.
type PresenceChanged struct {
	Username string
	Status   domain.Status
	At       time.Time
}

// PrivateMessageDelivered is pushed to the recipient's connection only.
type PrivateMessageDelivered struct {
	ID        uuid.UUID
	From      string
	Text      string
	AudioURL  *string
	VideoURL  *string
	Timestamp time.Time
}

// RoomMessageDelivered is pushed to every connection joined to Room, the sender included.
type RoomMessageDelivered struct {
	Room    domain.RoomID
	Message domain.Message
}

type HistoryPage struct {
	Key      domain.ThreadKey
	Messages []domain.Message
	Cursor   *string
}

type SearchResult struct {
	Key   domain.ThreadKey
	Query string
	Hits  []domain.SearchHit
}

// Failure tells the sender that one of its events was not processed.
type Failure struct {
	Code    string
	Message string
}

// MessagePersisted is emitted after a durable append. It never leaves the process.
type MessagePersisted struct {
	Key     domain.ThreadKey
	Message domain.Message
}

func (PresenceChanged) Type() Type         { return TypePresenceChanged }
func (PrivateMessageDelivered) Type() Type { return TypePrivateMessage }
func (RoomMessageDelivered) Type() Type    { return TypeRoomMessage }
func (HistoryPage) Type() Type             { return TypeHistory }
func (SearchResult) Type() Type            { return TypeSearch }
func (Failure) Type() Type                 { return TypeFailure }
func (MessagePersisted) Type() Type        { return "messagePersisted" }

func NewPrivateMessageDelivered(m domain.Message) PrivateMessageDelivered {
	return PrivateMessageDelivered{
		ID:        m.ID,
		From:      m.Username,
		Text:      m.Text,
		AudioURL:  m.AudioURL,
		VideoURL:  m.VideoURL,
		Timestamp: m.Timestamp,
	}
}
