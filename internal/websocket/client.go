package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tripsync/internal/config"
	"tripsync/internal/models"
	"tripsync/internal/relay"
	"tripsync/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Client pumps messages between one websocket connection and the relay.
// Reads happen on ReadPump's goroutine, writes on WritePump's; the send
// channel is the only hand-off between them.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	manager *relay.Manager
	bcast   *relay.Broadcaster
	cfg     config.RelayConfig

	done      chan struct{}
	closeOnce sync.Once

	rc *relay.Connection
}

func NewClient(conn *websocket.Conn, manager *relay.Manager, bcast *relay.Broadcaster, cfg config.RelayConfig) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, cfg.SendBuffer),
		manager: manager,
		bcast:   bcast,
		cfg:     cfg,
		done:    make(chan struct{}),
	}
}

// Start admits the connection under the verified identity and launches
// both pumps. On admission failure the transport is closed immediately.
func (c *Client) Start(identity models.Identity) error {
	rc, err := c.manager.Admit(identity, c)
	if err != nil {
		c.conn.Close()
		return err
	}
	c.rc = rc
	go c.WritePump()
	go c.ReadPump()
	return nil
}

// Send queues one encoded event for the peer without blocking. A full
// queue means the peer is too slow; the event is dropped (at-most-once).
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close asks the write pump to flush what is already queued, send a close
// frame, and shut the transport. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ReadPump reads inbound messages until the transport dies, then runs the
// single disconnect path. The read deadline doubles as the idle timeout:
// a peer that stops answering pings is forcibly disconnected.
func (c *Client) ReadPump() {
	defer func() {
		c.manager.Disconnect(c.rc)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("bad json")
			continue
		}

		switch msg.Type {
		case models.MessageTypeJoinRoom:
			if err := c.manager.JoinRoom(c.rc, msg.TripID, msg.UserInfo); err != nil {
				logger.Warn("join failed for connection %s: %v", c.rc.ID, err)
				c.sendError(err.Error())
			}
		case models.MessageTypeLeaveRoom:
			c.manager.LeaveRoom(c.rc)
		default:
			if err := c.bcast.Handle(c.rc, &msg); err != nil {
				logger.Warn("rejected %s from connection %s: %v", msg.Type, c.rc.ID, err)
				c.sendError(err.Error())
			}
		}
	}
}

// WritePump drains the send queue and keeps the heartbeat going.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.drainAndClose()
			return
		}
	}
}

// drainAndClose flushes the queued events so a shutdown notice sent just
// before Close still reaches the peer, then says goodbye properly.
func (c *Client) drainAndClose() {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// sendError reports a validation failure to this connection only; such
// errors are never broadcast.
func (c *Client) sendError(message string) {
	evt := models.ServerEvent{
		Type:      models.EventError,
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if data, err := json.Marshal(evt); err == nil {
		c.Send(data)
	}
}
