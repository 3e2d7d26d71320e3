package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRoomMembership = (*RoomMembership)(nil)

type Set map[domain.ConnectionID]struct{}

// RoomMembership tracks every live connection and the room it currently sits in.
// A connection belongs to at most one room at a time.
type RoomMembership struct {
	mu          sync.RWMutex
	sessions    map[domain.ConnectionID]contract.Connection
	currentRoom map[domain.ConnectionID]domain.RoomID
	roomMembers map[domain.RoomID]Set
}

func NewRoomMembership() *RoomMembership {
	return &RoomMembership{
		sessions:    make(map[domain.ConnectionID]contract.Connection),
		currentRoom: make(map[domain.ConnectionID]domain.RoomID),
		roomMembers: make(map[domain.RoomID]Set),
	}
}

// Attach makes a connection reachable by broadcasts. It does not join any room.
func (r *RoomMembership) Attach(conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn.ID()] = conn
}

// Detach forgets the connection and removes it from its room.
// Empty rooms are dropped so the map does not grow with abandoned rooms.
func (r *RoomMembership) Detach(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	r.leaveLocked(id)
}

// Join moves an attached connection into room, leaving its previous room.
// It returns false if the connection is unknown (already disconnected).
func (r *RoomMembership) Join(id domain.ConnectionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	r.leaveLocked(id)
	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(Set)
	}
	r.roomMembers[room][id] = struct{}{}
	r.currentRoom[id] = room
	return true
}

func (r *RoomMembership) leaveLocked(id domain.ConnectionID) {
	room, ok := r.currentRoom[id]
	if !ok {
		return
	}
	delete(r.currentRoom, id)
	if members, ok := r.roomMembers[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
}

func (r *RoomMembership) CurrentRoom(id domain.ConnectionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.currentRoom[id]
	return room, ok
}

func (r *RoomMembership) Connection(id domain.ConnectionID) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.sessions[id]
	return conn, ok
}

// Members returns a snapshot of the connections currently joined to room.
// Returns nil if the room has no members.
func (r *RoomMembership) Members(room domain.RoomID) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	var conns []contract.Connection
	for id := range members {
		if conn, exists := r.sessions[id]; exists {
			conns = append(conns, conn)
		}
	}
	return conns
}

func (r *RoomMembership) All() []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}

func (r *RoomMembership) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomMembers)
}
