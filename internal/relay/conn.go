package relay

import (
	"sync"

	"tripsync/internal/models"
)

// Sender is a connection's outbound side. Send must not block: return
// false to drop when the peer cannot keep up. Close asks the transport to
// finish its queue, send a close frame, and shut down; it must be safe to
// call more than once.
type Sender interface {
	Send(data []byte) bool
	Close()
}

// Connection is one physical duplex channel from one client. It is owned
// by the lifecycle Manager; nothing else creates or destroys these.
type Connection struct {
	ID   string
	User models.Identity

	sender Sender

	mu   sync.Mutex
	room *Room
}

// Room returns the room this connection is currently joined to, or nil.
func (c *Connection) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Connection) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

func (c *Connection) deliver(data []byte) bool {
	return c.sender.Send(data)
}

func (c *Connection) closeTransport() {
	c.sender.Close()
}
