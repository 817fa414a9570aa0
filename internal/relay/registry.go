package relay

import (
	"sync"
	"time"

	"tripsync/internal/models"
	"tripsync/pkg/logger"
)

// Registry indexes active rooms by trip id. It is the only shared mutable
// structure in the relay; every mutation funnels through the lifecycle
// Manager or the Broadcaster.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	grace time.Duration
}

// NewRegistry creates a registry whose rooms linger for grace after their
// membership drops to zero, absorbing rapid leave/rejoin cycles such as a
// page navigation.
func NewRegistry(grace time.Duration) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		grace: grace,
	}
}

// GetOrCreate returns the room for a trip, allocating it on first join.
// The room returned is always fully initialized.
func (g *Registry) GetOrCreate(tripID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[tripID]
	if !ok {
		room = newRoom(tripID)
		g.rooms[tripID] = room
		logger.Debug("room %s created", tripID)
	}
	return room
}

// Get returns the room for a trip, or nil.
func (g *Registry) Get(tripID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[tripID]
}

// Presence returns the roster for a trip's room; nil if no room exists.
func (g *Registry) Presence(tripID string) []models.PresenceEntry {
	room := g.Get(tripID)
	if room == nil {
		return nil
	}
	return room.Presence()
}

// Rooms returns the trip ids of all live rooms.
func (g *Registry) Rooms() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		out = append(out, id)
	}
	return out
}

// ReleaseIfEmpty schedules the room for destruction if its membership is
// zero, deferred by the grace window. A join landing before the timer
// fires cancels the teardown.
func (g *Registry) ReleaseIfEmpty(tripID string) {
	g.mu.Lock()
	room := g.rooms[tripID]
	g.mu.Unlock()
	if room == nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.members) != 0 || room.draining || room.destroy != nil {
		return
	}
	room.destroy = time.AfterFunc(g.grace, func() {
		g.drain(room)
	})
}

// drain performs the deferred teardown: if the room is still empty when
// the grace timer fires, mark it draining and unindex it so a later join
// for the same trip gets a fresh room with no leaked state.
func (g *Registry) drain(room *Room) {
	room.mu.Lock()
	if len(room.members) != 0 {
		room.destroy = nil
		room.mu.Unlock()
		return
	}
	room.draining = true
	room.mu.Unlock()

	g.mu.Lock()
	if g.rooms[room.TripID] == room {
		delete(g.rooms, room.TripID)
	}
	g.mu.Unlock()
	logger.Debug("room %s destroyed", room.TripID)
}

// Shutdown cancels all pending grace timers.
func (g *Registry) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, room := range g.rooms {
		room.mu.Lock()
		if room.destroy != nil {
			room.destroy.Stop()
			room.destroy = nil
		}
		room.mu.Unlock()
	}
}
