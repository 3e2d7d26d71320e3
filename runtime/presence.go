package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"
)

var _ contract.IPresenceRegistry = (*PresenceRegistry)(nil)

// PresenceRegistry maps a username to its single live connection.
// A reconnect overwrites the previous entry; Remove only evicts the connection it was asked to.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]domain.ConnectionID
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{entries: make(map[string]domain.ConnectionID)}
}

func (p *PresenceRegistry) Set(username string, id domain.ConnectionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[username] = id
}

func (p *PresenceRegistry) Get(username string) (domain.ConnectionID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.entries[username]
	return id, ok
}

// Remove deletes the entry of username only if it still points to expected.
// It returns false when a newer connection already replaced it.
func (p *PresenceRegistry) Remove(username string, expected domain.ConnectionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	current, ok := p.entries[username]
	if !ok || current != expected {
		return false
	}
	delete(p.entries, username)
	return true
}

func (p *PresenceRegistry) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
