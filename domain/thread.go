package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

type ThreadKind uint8

const (
	ThreadKindRoom ThreadKind = iota + 1
	ThreadKindDirect
)

const (
	roomPrefix   = "room:"
	directPrefix = "direct:"
)

// ThreadKey identifies a conversation thread: either a room or an unordered pair of usernames.
// The zero value is not a valid key.
type ThreadKey struct {
	kind  ThreadKind
	room  RoomID
	users [2]string
}

func RoomThread(room RoomID) ThreadKey {
	return ThreadKey{kind: ThreadKindRoom, room: room}
}

// DirectThread builds the key of the conversation between a and b.
// DirectThread(a, b) == DirectThread(b, a).
func DirectThread(a, b string) ThreadKey {
	users := []string{a, b}
	sort.Strings(users)
	return ThreadKey{kind: ThreadKindDirect, users: [2]string{users[0], users[1]}}
}

func (k ThreadKey) Kind() ThreadKind { return k.kind }

func (k ThreadKey) Room() RoomID { return k.room }

func (k ThreadKey) Users() [2]string { return k.users }

func (k ThreadKey) IsValid() bool {
	switch k.kind {
	case ThreadKindRoom:
		return k.room != ""
	case ThreadKindDirect:
		return k.users[0] != "" && k.users[1] != ""
	default:
		return false
	}
}

// Includes reports whether username is one of the participants of a direct thread.
func (k ThreadKey) Includes(username string) bool {
	return k.kind == ThreadKindDirect && (k.users[0] == username || k.users[1] == username)
}

// String returns the storage form of the key. Components are query-escaped so that
// the ':' separator never appears inside them.
func (k ThreadKey) String() string {
	switch k.kind {
	case ThreadKindRoom:
		return roomPrefix + url.QueryEscape(string(k.room))
	case ThreadKindDirect:
		return directPrefix + url.QueryEscape(k.users[0]) + ":" + url.QueryEscape(k.users[1])
	default:
		return ""
	}
}

func ParseThreadKey(s string) (ThreadKey, error) {
	switch {
	case strings.HasPrefix(s, roomPrefix):
		room, err := url.QueryUnescape(strings.TrimPrefix(s, roomPrefix))
		if err != nil || room == "" {
			return ThreadKey{}, fmt.Errorf("invalid room thread key %q", s)
		}
		return RoomThread(RoomID(room)), nil
	case strings.HasPrefix(s, directPrefix):
		parts := strings.Split(strings.TrimPrefix(s, directPrefix), ":")
		if len(parts) != 2 {
			return ThreadKey{}, fmt.Errorf("invalid direct thread key %q", s)
		}
		a, errA := url.QueryUnescape(parts[0])
		b, errB := url.QueryUnescape(parts[1])
		if errA != nil || errB != nil || a == "" || b == "" {
			return ThreadKey{}, fmt.Errorf("invalid direct thread key %q", s)
		}
		return DirectThread(a, b), nil
	default:
		return ThreadKey{}, fmt.Errorf("unknown thread key %q", s)
	}
}

// Thread is the durable header of a conversation. Its messages live in the store,
// Length is the number of messages appended so far.
type Thread struct {
	Key       ThreadKey
	Length    uint64
	CreatedAt time.Time
}

var errInvalidThreadKey = fmt.Errorf("thread key requires a room or a peer username")
