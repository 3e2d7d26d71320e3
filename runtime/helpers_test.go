package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"sync"
)

// fakeConn records every event pushed to it.
type fakeConn struct {
	id       domain.ConnectionID
	username string
	err      error
	// onConsume runs before the event is recorded, outside the lock
	onConsume func(event.DomainEvent)

	mu     sync.Mutex
	events []event.DomainEvent
}

func newFakeConn(username string) *fakeConn {
	return &fakeConn{id: domain.NewConnectionID(), username: username}
}

func (c *fakeConn) ID() domain.ConnectionID { return c.id }

func (c *fakeConn) Username() string { return c.username }

func (c *fakeConn) Consume(_ context.Context, e event.DomainEvent) error {
	if c.err != nil {
		return c.err
	}
	if c.onConsume != nil {
		c.onConsume(e)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *fakeConn) received() []event.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.DomainEvent(nil), c.events...)
}

func (c *fakeConn) receivedOfType(t event.Type) []event.DomainEvent {
	var out []event.DomainEvent
	for _, e := range c.received() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}
