package domain

import (
	relayerr "chat-relay/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Command is an inbound client event, already bound to the identity of its connection.
type Command interface {
	CommandName() string
}

type JoinRoomCommand struct {
	Room RoomID `validate:"required"`
}

type PrivateMessageCommand struct {
	From    string `validate:"required"`
	To      string `validate:"required"`
	Content Content
}

type RoomMessageCommand struct {
	Room    RoomID `validate:"required"`
	From    string `validate:"required"`
	Content Content
}

type HistoryQuery struct {
	Requester string `validate:"required"`
	Key       ThreadKey
	Cursor    *string
}

type SearchQuery struct {
	Requester string `validate:"required"`
	Key       ThreadKey
	Query     string `validate:"required"`
}

func (JoinRoomCommand) CommandName() string       { return "joinRoom" }
func (PrivateMessageCommand) CommandName() string { return "privateMessage" }
func (RoomMessageCommand) CommandName() string    { return "message" }
func (HistoryQuery) CommandName() string          { return "history" }
func (SearchQuery) CommandName() string           { return "search" }

// Validate checks the required fields of a command.
// Any failure matches errors.ErrMalformedEvent; a missing sender matches errors.ErrAnonymousSender.
func Validate(cmd Command) error {
	switch c := cmd.(type) {
	case PrivateMessageCommand:
		if c.From == "" {
			return relayerr.ErrAnonymousSender
		}
	case RoomMessageCommand:
		if c.From == "" {
			return relayerr.ErrAnonymousSender
		}
	case HistoryQuery:
		if !c.Key.IsValid() {
			return relayerr.Malformed(errInvalidThreadKey)
		}
	case SearchQuery:
		if !c.Key.IsValid() {
			return relayerr.Malformed(errInvalidThreadKey)
		}
	}
	if err := validate.Struct(cmd); err != nil {
		return relayerr.Malformed(err)
	}
	return nil
}
