package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

var _ contract.ILifecycleManager = (*LifecycleManager)(nil)

// LifecycleManager is the only writer of the presence registry and the room membership.
// A presence change and its broadcast happen under one lock, so observers see
// online/offline in the same order as the registry.
type LifecycleManager struct {
	mu         sync.Mutex
	log        *slog.Logger
	presence   contract.IPresenceRegistry
	membership contract.IRoomMembership
	now        func() time.Time
}

func NewLifecycleManager(log *slog.Logger, presence contract.IPresenceRegistry, membership contract.IRoomMembership) *LifecycleManager {
	return &LifecycleManager{log: log, presence: presence, membership: membership, now: time.Now}
}

// OnConnect makes the connection reachable and announces its user online.
// Anonymous connections are accepted but stay out of presence tracking.
func (m *LifecycleManager) OnConnect(ctx context.Context, conn contract.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.membership.Attach(conn)
	username := conn.Username()
	if username == "" {
		m.log.Info("Anonymous connection accepted", "connection_id", conn.ID())
		return
	}
	if previous, ok := m.presence.Get(username); ok {
		m.log.Info("User reconnected, replacing previous session",
			"username", username, "previous_connection_id", previous)
	}
	m.presence.Set(username, conn.ID())
	m.log.Info("User connected", "username", username, "connection_id", conn.ID())
	m.broadcast(ctx, event.PresenceChanged{Username: username, Status: domain.StatusOnline, At: m.now().UTC()})
}

// OnJoinRoom sets the current room of the connection. Rooms need no prior creation.
func (m *LifecycleManager) OnJoinRoom(_ context.Context, conn contract.Connection, room domain.RoomID) error {
	if err := domain.Validate(domain.JoinRoomCommand{Room: room}); err != nil {
		return err
	}
	if !m.membership.Join(conn.ID(), room) {
		m.log.Debug("Join ignored for a detached connection", "connection_id", conn.ID(), "room_id", room)
		return nil
	}
	m.log.Info("User joined room", "username", conn.Username(), "connection_id", conn.ID(), "room_id", room)
	return nil
}

// OnDisconnect forgets the connection. The user is announced offline only if this connection
// was still its registered one: a late disconnect must not evict a fresher reconnect.
func (m *LifecycleManager) OnDisconnect(ctx context.Context, conn contract.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.membership.Detach(conn.ID())
	username := conn.Username()
	if username == "" {
		return
	}
	if !m.presence.Remove(username, conn.ID()) {
		m.log.Debug("Stale disconnect ignored", "username", username, "connection_id", conn.ID())
		return
	}
	m.log.Info("User disconnected", "username", username, "connection_id", conn.ID())
	m.broadcast(ctx, event.PresenceChanged{Username: username, Status: domain.StatusOffline, At: m.now().UTC()})
}

// broadcast runs with m.mu held. Connection.Consume never blocks.
func (m *LifecycleManager) broadcast(ctx context.Context, evt event.DomainEvent) {
	ctx = context.WithoutCancel(ctx)
	for _, conn := range m.membership.All() {
		if err := conn.Consume(ctx, evt); err != nil {
			m.log.Warn("Failed to push presence change", "connection_id", conn.ID(), "error", err)
		}
	}
}
