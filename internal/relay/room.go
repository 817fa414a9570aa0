package relay

import (
	"sync"
	"time"

	"tripsync/internal/models"
)

// Room is the collaboration session for one trip. One mutex guards
// membership, presence and typing state as a unit, so concurrent
// joins/leaves against the same trip serialize; rooms are otherwise fully
// independent of each other.
type Room struct {
	TripID string

	mu       sync.Mutex
	members  map[string]*Connection
	presence *presenceDirectory
	typing   *typingTracker

	// draining marks the brief window while the registry tears the room
	// down; joins arriving in that window are refused.
	draining bool
	destroy  *time.Timer
}

func newRoom(tripID string) *Room {
	return &Room{
		TripID:   tripID,
		members:  make(map[string]*Connection),
		presence: newPresenceDirectory(),
		typing:   newTypingTracker(),
	}
}

// add registers a connection and upserts the user's presence entry.
// Reports whether the user is new to the room, or ErrRoomUnavailable if
// the room is mid-teardown.
func (r *Room) add(c *Connection, info *models.UserInfo) (firstJoin bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return false, ErrRoomUnavailable
	}
	if r.destroy != nil {
		// A member came back inside the grace window; keep the room.
		r.destroy.Stop()
		r.destroy = nil
	}
	r.members[c.ID] = c
	firstJoin = r.presence.upsert(c.User, c.ID, info)
	return firstJoin, nil
}

// remove drops a connection from the room. lastOfUser reports whether the
// user has no remaining connections here; typingField carries the field
// the user was typing in, cleared as part of removal.
func (r *Room) remove(c *Connection) (lastOfUser bool, typingField string, wasTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[c.ID]; !ok {
		return false, "", false
	}
	delete(r.members, c.ID)
	lastOfUser = r.presence.dropConn(c.User.UID, c.ID)
	if lastOfUser {
		typingField, wasTyping = r.typing.clear(c.User.UID)
	}
	return lastOfUser, typingField, wasTyping
}

// has reports current membership of a connection.
func (r *Room) has(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[connID]
	return ok
}

// Size returns the number of member connections.
func (r *Room) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Presence returns the join-ordered roster.
func (r *Room) Presence() []models.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.snapshot()
}

// recipients snapshots the member list under the lock so fan-out can
// happen outside it; a slow consumer must never stall the room. exclude
// is the originating connection id, or empty for a full-room broadcast.
func (r *Room) recipients(exclude string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.members))
	for id, c := range r.members {
		if id == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Room) touchPresence(userID, action string) {
	r.mu.Lock()
	r.presence.touch(userID, action)
	r.mu.Unlock()
}

func (r *Room) startTyping(userID, field string) {
	r.mu.Lock()
	r.typing.start(userID, field)
	r.mu.Unlock()
}

func (r *Room) stopTyping(userID, field string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typing.stop(userID, field)
}
