package domain

import "github.com/google/uuid"

// ConnectionID identifies one live transport session. It is never reused.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)
