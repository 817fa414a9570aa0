package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"tripsync/internal/models"
	"tripsync/pkg/logger"
)

// Broadcaster validates client-originated actions, stamps them, and fans
// the resulting events out to the right audience. Delivery is best-effort
// and at-most-once: a recipient whose queue is full simply misses the
// event, and clients re-fetch authoritative trip state on reconnect.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Handle relays one inbound update message from a connection. The
// connection must currently be a member of the target room; otherwise the
// message is refused with ErrNotInRoom and nothing is broadcast.
func (b *Broadcaster) Handle(c *Connection, msg *models.ClientMessage) error {
	if msg.Type == models.MessageTypePing {
		b.sendTo(c, &models.ServerEvent{Type: models.EventPong, Timestamp: stamp()})
		return nil
	}

	room := c.Room()
	if room == nil || room.TripID != msg.TripID || !room.has(c.ID) {
		return fmt.Errorf("%s from %s: %w", msg.Type, c.ID, ErrNotInRoom)
	}

	switch msg.Type {
	case models.MessageTypeTripUpdate:
		room.touchPresence(c.User.UID, "editing trip")
		b.toRoom(room, c.ID, &models.ServerEvent{
			Type:       models.EventTripUpdated,
			TripID:     room.TripID,
			UserID:     c.User.UID,
			UpdateType: msg.UpdateType,
			UpdateData: msg.UpdateData,
		})

	case models.MessageTypeItineraryUpdate:
		room.touchPresence(c.User.UID, "editing itinerary")
		b.toRoom(room, c.ID, &models.ServerEvent{
			Type:          models.EventItineraryUpdated,
			TripID:        room.TripID,
			UserID:        c.User.UID,
			Day:           msg.Day,
			ActivityIndex: msg.ActivityIndex,
			ActivityData:  msg.ActivityData,
			Action:        msg.Action,
		})

	case models.MessageTypeBudgetUpdate:
		room.touchPresence(c.User.UID, "editing budget")
		b.toRoom(room, c.ID, &models.ServerEvent{
			Type:       models.EventBudgetUpdated,
			TripID:     room.TripID,
			UserID:     c.User.UID,
			BudgetData: msg.BudgetData,
			Category:   msg.Category,
		})

	case models.MessageTypeCommentAdd:
		room.touchPresence(c.User.UID, "commenting")
		b.toRoom(room, c.ID, &models.ServerEvent{
			Type:       models.EventCommentAdded,
			TripID:     room.TripID,
			UserID:     c.User.UID,
			Comment:    msg.Comment,
			TargetType: msg.TargetType,
			TargetID:   msg.TargetID,
		})

	case models.MessageTypeCursorUpdate:
		// Stateless passthrough; nothing is retained server-side.
		b.toRoom(room, c.ID, &models.ServerEvent{
			Type:       models.EventCursorUpdated,
			TripID:     room.TripID,
			UserID:     c.User.UID,
			CursorData: msg.CursorData,
		})

	case models.MessageTypeTypingStart:
		room.startTyping(c.User.UID, msg.Field)
		b.typingChanged(room, c.User, msg.Field, true)

	case models.MessageTypeTypingStop:
		if room.stopTyping(c.User.UID, msg.Field) {
			b.typingChanged(room, c.User, msg.Field, false)
		}
		// A stop for a field the user already left is a silent no-op.

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// typingChanged goes to the full room including the originator, since it
// reflects aggregate state the originator does not otherwise hold.
func (b *Broadcaster) typingChanged(room *Room, user models.Identity, field string, isTyping bool) {
	b.toRoom(room, "", &models.ServerEvent{
		Type:   models.EventUserTyping,
		TripID: room.TripID,
		UserID: user.UID,
		UserInfo: &models.UserInfo{
			DisplayName: user.DisplayName,
			PhotoURL:    user.PhotoURL,
		},
		Field:    field,
		IsTyping: isTyping,
	})
}

// PresenceChanged broadcasts the full roster to everyone in the room,
// originator included.
func (b *Broadcaster) PresenceChanged(room *Room) {
	presence := room.Presence()
	b.toRoom(room, "", &models.ServerEvent{
		Type:      models.EventPresenceUpdate,
		TripID:    room.TripID,
		Presence:  presence,
		UserCount: len(presence),
	})
}

// System emits a system-message to every member of a trip's room, if one
// is live.
func (b *Broadcaster) System(tripID, message string) {
	room := b.registry.Get(tripID)
	if room == nil {
		return
	}
	b.toRoom(room, "", &models.ServerEvent{
		Type:    models.EventSystemMessage,
		TripID:  room.TripID,
		Message: message,
	})
}

// toRoom encodes once, snapshots the membership under the room lock, then
// writes outside it so one slow consumer never serializes the rest.
func (b *Broadcaster) toRoom(room *Room, exclude string, evt *models.ServerEvent) {
	evt.Timestamp = stamp()
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("marshal %s event: %v", evt.Type, err)
		return
	}
	for _, c := range room.recipients(exclude) {
		if !c.deliver(data) {
			logger.Debug("dropping %s event for connection %s: queue full", evt.Type, c.ID)
		}
	}
}

func (b *Broadcaster) sendTo(c *Connection, evt *models.ServerEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("marshal %s event: %v", evt.Type, err)
		return
	}
	c.deliver(data)
}

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
