package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomMembership_Join_OneRoomAtATime(t *testing.T) {
	req := require.New(t)
	membership := NewRoomMembership()
	conn := newFakeConn("alice")

	// Given an attached connection
	membership.Attach(conn)
	req.Empty(membership.Members("general"))

	// When it joins two rooms in a row
	req.True(membership.Join(conn.ID(), "general"))
	req.True(membership.Join(conn.ID(), "random"))

	// Then only the last one counts
	room, ok := membership.CurrentRoom(conn.ID())
	req.True(ok)
	req.Equal(domain.RoomID("random"), room)
	req.Empty(membership.Members("general"))
	req.Len(membership.Members("random"), 1)
	req.Equal(1, membership.Rooms())
}

func TestRoomMembership_Join_UnknownConnection(t *testing.T) {
	req := require.New(t)
	membership := NewRoomMembership()

	req.False(membership.Join(domain.NewConnectionID(), "general"))
	req.Zero(membership.Rooms())
}

func TestRoomMembership_Members_ManyConnections(t *testing.T) {
	req := require.New(t)
	membership := NewRoomMembership()
	alice, bob, carol := newFakeConn("alice"), newFakeConn("bob"), newFakeConn("carol")

	for _, c := range []*fakeConn{alice, bob, carol} {
		membership.Attach(c)
	}
	membership.Join(alice.ID(), "general")
	membership.Join(bob.ID(), "general")
	membership.Join(carol.ID(), "random")

	req.ElementsMatch([]contract.Connection{alice, bob}, membership.Members("general"))
	req.ElementsMatch([]contract.Connection{carol}, membership.Members("random"))
	req.Len(membership.All(), 3)
	req.Equal(2, membership.Rooms())
}

func TestRoomMembership_Detach_RemovesFromRoomAndDropsEmptyRoom(t *testing.T) {
	req := require.New(t)
	membership := NewRoomMembership()
	conn := newFakeConn("alice")
	membership.Attach(conn)
	membership.Join(conn.ID(), "general")

	membership.Detach(conn.ID())

	_, ok := membership.Connection(conn.ID())
	req.False(ok)
	_, ok = membership.CurrentRoom(conn.ID())
	req.False(ok)
	req.Nil(membership.Members("general"))
	req.Zero(membership.Rooms())
	req.Empty(membership.All())
}
