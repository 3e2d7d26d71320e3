// Package domain contains core concepts of the chat relay.
// This file defines Message entries and their optional payload.
// Messages are immutable once appended to a thread.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Content is the client-supplied part of a message.
// Every field is optional: a media-only message has no text, a text message has no media.
type Content struct {
	Text     *string
	AudioURL *string
	VideoURL *string
}

// IsEmpty reports whether none of the fields carries a value.
// Empty content is still accepted by the relay.
func (c Content) IsEmpty() bool {
	return lo.FromPtr(c.Text) == "" && lo.FromPtr(c.AudioURL) == "" && lo.FromPtr(c.VideoURL) == ""
}

// Message is one entry of a conversation thread.
// Timestamp is assigned by the relay at receipt time, Seq by the store at append time.
type Message struct {
	ID        uuid.UUID
	Seq       uint64
	Username  string
	Text      string
	AudioURL  *string
	VideoURL  *string
	Seen      bool
	Timestamp time.Time
}

func NewMessage(username string, content Content, at time.Time) Message {
	return Message{
		ID:        uuid.New(),
		Username:  username,
		Text:      lo.FromPtr(content.Text),
		AudioURL:  emptyToNil(content.AudioURL),
		VideoURL:  emptyToNil(content.VideoURL),
		Seen:      false,
		Timestamp: at.UTC(),
	}
}

func emptyToNil(s *string) *string {
	if lo.FromPtr(s) == "" {
		return nil
	}
	return s
}

// SearchHit is a message matched by the full-text index.
type SearchHit struct {
	MessageID uuid.UUID
	Seq       uint64
	Username  string
	Text      string
	Timestamp time.Time
	Score     float64
}
