package relay

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"tripsync/internal/models"
	"tripsync/pkg/logger"
)

// Manager owns every Connection record: it admits them, moves them
// between rooms, and tears them down. A connection belongs to at most one
// room at a time.
type Manager struct {
	registry *Registry
	bcast    *Broadcaster

	mu    sync.Mutex
	conns map[string]*Connection
}

func NewManager(registry *Registry, bcast *Broadcaster) *Manager {
	return &Manager{
		registry: registry,
		bcast:    bcast,
		conns:    make(map[string]*Connection),
	}
}

// Admit creates a Connection record for a verified identity. The identity
// must come from the external verification step; an empty one is refused.
func (m *Manager) Admit(user models.Identity, sender Sender) (*Connection, error) {
	if user.UID == "" {
		return nil, ErrUnauthenticated
	}
	c := &Connection{
		ID:     uuid.NewString(),
		User:   user,
		sender: sender,
	}
	m.mu.Lock()
	m.conns[c.ID] = c
	m.mu.Unlock()
	logger.Debug("connection %s admitted for user %s", c.ID, user.UID)
	return c, nil
}

// JoinRoom moves the connection into the trip's room, leaving any previous
// room first. Emits a full presence-update to the room and, when this is
// the user's first connection there, a user-joined carrying the actor.
func (m *Manager) JoinRoom(c *Connection, tripID string, info *models.UserInfo) error {
	if current := c.Room(); current != nil {
		if current.TripID == tripID {
			// Rejoin of the current room is idempotent.
			return nil
		}
		m.leave(c, current)
	}

	room := m.registry.GetOrCreate(tripID)
	firstJoin, err := room.add(c, info)
	if err != nil {
		return fmt.Errorf("join %s: %w", tripID, err)
	}
	c.setRoom(room)

	if firstJoin {
		m.bcast.toRoom(room, c.ID, &models.ServerEvent{
			Type:     models.EventUserJoined,
			TripID:   tripID,
			UserID:   c.User.UID,
			UserInfo: joinInfo(c.User, info),
		})
	}
	m.bcast.PresenceChanged(room)
	logger.Info("user %s joined trip %s (connection %s)", c.User.UID, tripID, c.ID)
	return nil
}

// LeaveRoom removes the connection from its room. No-op when the
// connection has no room.
func (m *Manager) LeaveRoom(c *Connection) {
	if room := c.Room(); room != nil {
		m.leave(c, room)
	}
}

// Disconnect is the single teardown path for a closed physical channel,
// whatever the cause: explicit close, network failure, or idle timeout.
func (m *Manager) Disconnect(c *Connection) {
	m.mu.Lock()
	_, tracked := m.conns[c.ID]
	delete(m.conns, c.ID)
	m.mu.Unlock()
	if !tracked {
		return
	}
	m.LeaveRoom(c)
	logger.Debug("connection %s released", c.ID)
}

// leave removes the connection from room and emits the cleanup events so
// observers never see a ghost member or a stuck typing indicator.
func (m *Manager) leave(c *Connection, room *Room) {
	lastOfUser, typingField, wasTyping := room.remove(c)
	c.setRoom(nil)

	if wasTyping {
		m.bcast.typingChanged(room, c.User, typingField, false)
	}
	if lastOfUser {
		m.bcast.toRoom(room, "", &models.ServerEvent{
			Type:   models.EventUserLeft,
			TripID: room.TripID,
			UserID: c.User.UID,
		})
	}
	m.bcast.PresenceChanged(room)
	m.registry.ReleaseIfEmpty(room.TripID)
	logger.Info("user %s left trip %s (connection %s)", c.User.UID, room.TripID, c.ID)
}

// ConnectionCount reports the number of live connections.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Shutdown notifies every room that the relay is going away, then closes
// every live transport with a close frame. The transports sit behind the
// HTTP server's hijacked connections, so server.Shutdown alone would
// leave them dangling until the process dies.
func (m *Manager) Shutdown(message string) {
	for _, tripID := range m.registry.Rooms() {
		m.bcast.System(tripID, message)
	}
	m.registry.Shutdown()

	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	for _, c := range conns {
		c.closeTransport()
	}
}

func joinInfo(user models.Identity, info *models.UserInfo) *models.UserInfo {
	out := &models.UserInfo{
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
		Email:       user.Email,
	}
	if info != nil {
		if info.DisplayName != "" {
			out.DisplayName = info.DisplayName
		}
		if info.PhotoURL != "" {
			out.PhotoURL = info.PhotoURL
		}
	}
	return out
}
