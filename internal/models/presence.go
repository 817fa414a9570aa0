package models

import "time"

// PresenceEntry is one user's live state within a room. A user with two
// open tabs still gets a single entry; connection bookkeeping lives in the
// relay, not here.
type PresenceEntry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Connections int       `json:"connections"`
	LastAction  string    `json:"last_action,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// RoomSnapshot is the REST view of a room's live state.
type RoomSnapshot struct {
	TripID    string          `json:"trip_id"`
	Presence  []PresenceEntry `json:"presence"`
	UserCount int             `json:"user_count"`
}
