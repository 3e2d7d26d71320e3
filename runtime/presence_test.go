package runtime

import (
	"chat-relay/domain"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceRegistry_Set_LatestConnectionWins(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceRegistry()
	first, second := domain.NewConnectionID(), domain.NewConnectionID()

	presence.Set("alice", first)
	presence.Set("alice", second)

	id, ok := presence.Get("alice")
	req.True(ok)
	req.Equal(second, id)
	req.Equal(1, presence.Count())
}

func TestPresenceRegistry_Remove_IgnoresStaleConnection(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceRegistry()
	stale, fresh := domain.NewConnectionID(), domain.NewConnectionID()
	presence.Set("alice", stale)
	presence.Set("alice", fresh)

	// When the old connection goes away late
	removed := presence.Remove("alice", stale)

	// Then the fresh one is kept
	req.False(removed)
	id, ok := presence.Get("alice")
	req.True(ok)
	req.Equal(fresh, id)

	req.True(presence.Remove("alice", fresh))
	_, ok = presence.Get("alice")
	req.False(ok)
	req.Zero(presence.Count())
}

func TestPresenceRegistry_Remove_UnknownUser(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceRegistry()

	req.False(presence.Remove("ghost", domain.NewConnectionID()))
}

func TestPresenceRegistry_ConcurrentAccess(t *testing.T) {
	req := require.New(t)
	presence := NewPresenceRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := domain.NewConnectionID()
			presence.Set("alice", id)
			presence.Get("alice")
			presence.Remove("alice", id)
		}()
	}
	wg.Wait()

	req.LessOrEqual(presence.Count(), 1)
}
