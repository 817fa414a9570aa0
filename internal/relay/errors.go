package relay

import "errors"

var (
	// ErrUnauthenticated is returned by Admit when no verified identity
	// accompanies the connection.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotInRoom is returned when a connection issues a room-scoped
	// action without being a member of that room.
	ErrNotInRoom = errors.New("not in room")

	// ErrRoomUnavailable is returned when a join races with the final
	// teardown of a drained room.
	ErrRoomUnavailable = errors.New("room unavailable")
)
