package models

import "encoding/json"

type MessageType string

// Client → relay message kinds.
const (
	MessageTypeJoinRoom        MessageType = "join-room"
	MessageTypeLeaveRoom       MessageType = "leave-room"
	MessageTypeTripUpdate      MessageType = "trip-update"
	MessageTypeItineraryUpdate MessageType = "itinerary-update"
	MessageTypeBudgetUpdate    MessageType = "budget-update"
	MessageTypeCursorUpdate    MessageType = "cursor-update"
	MessageTypeTypingStart     MessageType = "typing-start"
	MessageTypeTypingStop      MessageType = "typing-stop"
	MessageTypeCommentAdd      MessageType = "comment-add"
	MessageTypePing            MessageType = "ping"
)

// Relay → client event kinds.
const (
	EventUserJoined       MessageType = "user-joined"
	EventUserLeft         MessageType = "user-left"
	EventPresenceUpdate   MessageType = "presence-update"
	EventTripUpdated      MessageType = "trip-updated"
	EventItineraryUpdated MessageType = "itinerary-updated"
	EventBudgetUpdated    MessageType = "budget-updated"
	EventCursorUpdated    MessageType = "cursor-updated"
	EventUserTyping       MessageType = "user-typing"
	EventCommentAdded     MessageType = "comment-added"
	EventSystemMessage    MessageType = "system-message"
	EventPong             MessageType = "pong"
	EventError            MessageType = "error"
)

// Client-side synthetic kinds, emitted by the session facade on transport
// transitions. The relay never sends these.
const (
	EventConnect         MessageType = "connect"
	EventDisconnect      MessageType = "disconnect"
	EventConnectionError MessageType = "connection-error"
)

// ClientMessage is the inbound envelope. One flat struct with omitempty
// fields rather than a struct per kind, so the handler can unmarshal once
// and switch on Type.
type ClientMessage struct {
	Type   MessageType `json:"type"`
	TripID string      `json:"trip_id,omitempty"`
	UserID string      `json:"user_id,omitempty"`

	UserInfo *UserInfo `json:"user_info,omitempty"`

	// trip-update
	UpdateType string          `json:"update_type,omitempty"`
	UpdateData json.RawMessage `json:"update_data,omitempty"`

	// itinerary-update
	Day           int             `json:"day,omitempty"`
	ActivityIndex int             `json:"activity_index,omitempty"`
	ActivityData  json.RawMessage `json:"activity_data,omitempty"`
	Action        string          `json:"action,omitempty"`

	// budget-update
	BudgetData json.RawMessage `json:"budget_data,omitempty"`
	Category   string          `json:"category,omitempty"`

	// cursor-update
	CursorData json.RawMessage `json:"cursor_data,omitempty"`

	// typing-start / typing-stop
	Field string `json:"field,omitempty"`

	// comment-add
	Comment    string `json:"comment,omitempty"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
}

// ServerEvent is the outbound envelope. The relay stamps Timestamp on
// every event it constructs; payload fields are forwarded opaquely.
type ServerEvent struct {
	Type      MessageType `json:"type"`
	TripID    string      `json:"trip_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`

	UserInfo *UserInfo `json:"user_info,omitempty"`

	Presence  []PresenceEntry `json:"presence,omitempty"`
	UserCount int             `json:"user_count,omitempty"`

	UpdateType string          `json:"update_type,omitempty"`
	UpdateData json.RawMessage `json:"update_data,omitempty"`

	Day           int             `json:"day,omitempty"`
	ActivityIndex int             `json:"activity_index,omitempty"`
	ActivityData  json.RawMessage `json:"activity_data,omitempty"`
	Action        string          `json:"action,omitempty"`

	BudgetData json.RawMessage `json:"budget_data,omitempty"`
	Category   string          `json:"category,omitempty"`

	CursorData json.RawMessage `json:"cursor_data,omitempty"`

	Field    string `json:"field,omitempty"`
	IsTyping bool   `json:"is_typing"`

	Comment    string `json:"comment,omitempty"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`

	// system-message / error
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
