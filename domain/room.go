package domain

// RoomID identifies a logical room. Rooms are implicit: the first join creates them.
type RoomID string

func (r RoomID) String() string {
	return string(r)
}
