// Package session is the client-side counterpart of the relay: it owns
// one physical websocket connection, exposes typed send operations for
// the collaboration actions, and redistributes inbound events to local
// subscribers. On transport loss it reconnects with capped exponential
// backoff and rejoins the previously joined room, since server-side state
// does not survive a disconnect.
package session

import (
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"tripsync/internal/models"
	"tripsync/pkg/logger"
)

// ErrMaxReconnectExceeded is the terminal state after the reconnect
// budget is spent; the session will not retry again on its own.
var ErrMaxReconnectExceeded = errors.New("max reconnect attempts exceeded")

// State is the connection state visible to subscribers. UI layers may
// observe it but must never block trip editing on it; the relay is an
// enhancement, not a source of truth.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

type Config struct {
	// URL is the relay websocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// Token is the identity token presented at the handshake.
	Token string

	InitialBackoff       time.Duration // default 1s
	MaxBackoff           time.Duration // default 30s
	MaxReconnectAttempts int           // default 5
	HandshakeTimeout     time.Duration // default 10s
}

func (c *Config) applyDefaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// Handler receives one inbound event. Handlers run on the session's read
// goroutine; do not block in them.
type Handler func(evt *models.ServerEvent)

// Subscription is the handle returned by On and consumed by Off, so an
// unsubscribe can never silently miss its target.
type Subscription struct {
	kind models.MessageType
	id   int
}

// Session is an explicitly constructed collaboration connection. It is
// safe for concurrent use.
type Session struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	closed  bool
	subs    map[models.MessageType]map[int]Handler
	nextSub int

	// room the facade should rejoin after a reconnect
	joined   bool
	tripID   string
	userInfo *models.UserInfo

	writeMu sync.Mutex
}

func New(cfg Config) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:   cfg,
		state: StateDisconnected,
		subs:  make(map[models.MessageType]map[int]Handler),
	}
}

// Connect establishes the initial connection. Reconnection after a later
// transport loss is automatic; Connect itself does not retry.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	// StateConnecting and StateReconnecting both mean a dial is already
	// in flight even though conn is still nil; a second dial here would
	// leak one of the two connections.
	if s.conn != nil || s.state == StateConnecting || s.state == StateReconnecting {
		s.mu.Unlock()
		return errors.New("already connected")
	}
	s.state = StateConnecting
	s.mu.Unlock()

	conn, err := s.dial()
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	s.emit(&models.ServerEvent{Type: models.EventConnect})
	go s.readLoop(conn)
	return nil
}

// Close tears the session down for good; no reconnect follows.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.state = StateDisconnected
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// On registers a handler for one event kind and returns its handle.
func (s *Session) On(kind models.MessageType, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[kind] == nil {
		s.subs[kind] = make(map[int]Handler)
	}
	s.nextSub++
	s.subs[kind][s.nextSub] = h
	return Subscription{kind: kind, id: s.nextSub}
}

// Off removes a previously registered handler.
func (s *Session) Off(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hs := s.subs[sub.kind]; hs != nil {
		delete(hs, sub.id)
	}
}

// JoinRoom joins the collaboration room for a trip. The room is recorded
// so a reconnect can rejoin it before resuming updates.
func (s *Session) JoinRoom(tripID string, info *models.UserInfo) bool {
	s.mu.Lock()
	s.joined = true
	s.tripID = tripID
	s.userInfo = info
	s.mu.Unlock()

	return s.send(&models.ClientMessage{
		Type:     models.MessageTypeJoinRoom,
		TripID:   tripID,
		UserInfo: info,
	})
}

// LeaveRoom leaves the current room and forgets it for rejoin purposes.
func (s *Session) LeaveRoom() bool {
	s.mu.Lock()
	tripID := s.tripID
	s.joined = false
	s.tripID = ""
	s.userInfo = nil
	s.mu.Unlock()

	if tripID == "" {
		return true
	}
	return s.send(&models.ClientMessage{
		Type:   models.MessageTypeLeaveRoom,
		TripID: tripID,
	})
}

func (s *Session) UpdateTrip(updateType string, data json.RawMessage) bool {
	return s.roomSend(&models.ClientMessage{
		Type:       models.MessageTypeTripUpdate,
		UpdateType: updateType,
		UpdateData: data,
	})
}

func (s *Session) UpdateItinerary(day, activityIndex int, activity json.RawMessage, action string) bool {
	return s.roomSend(&models.ClientMessage{
		Type:          models.MessageTypeItineraryUpdate,
		Day:           day,
		ActivityIndex: activityIndex,
		ActivityData:  activity,
		Action:        action,
	})
}

func (s *Session) UpdateBudget(budget json.RawMessage, category string) bool {
	return s.roomSend(&models.ClientMessage{
		Type:       models.MessageTypeBudgetUpdate,
		BudgetData: budget,
		Category:   category,
	})
}

func (s *Session) AddComment(comment, targetType, targetID string) bool {
	return s.roomSend(&models.ClientMessage{
		Type:       models.MessageTypeCommentAdd,
		Comment:    comment,
		TargetType: targetType,
		TargetID:   targetID,
	})
}

func (s *Session) StartTyping(field string) bool {
	return s.roomSend(&models.ClientMessage{
		Type:  models.MessageTypeTypingStart,
		Field: field,
	})
}

func (s *Session) StopTyping(field string) bool {
	return s.roomSend(&models.ClientMessage{
		Type:  models.MessageTypeTypingStop,
		Field: field,
	})
}

func (s *Session) UpdateCursor(cursor json.RawMessage) bool {
	return s.roomSend(&models.ClientMessage{
		Type:       models.MessageTypeCursorUpdate,
		CursorData: cursor,
	})
}

func (s *Session) Ping() bool {
	return s.send(&models.ClientMessage{Type: models.MessageTypePing})
}

// roomSend stamps the message with the joined room before sending; a send
// with no room joined fails soft like any disconnected send.
func (s *Session) roomSend(msg *models.ClientMessage) bool {
	s.mu.Lock()
	joined := s.joined
	msg.TripID = s.tripID
	s.mu.Unlock()
	if !joined {
		return false
	}
	return s.send(msg)
}

// send is fail-soft: while disconnected it returns false instead of
// erroring, so callers can degrade collaborative affordances gracefully.
func (s *Session) send(msg *models.ClientMessage) bool {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		logger.Debug("session send failed: %v", err)
		return false
	}
	return true
}

func (s *Session) dial() (*websocket.Conn, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", s.cfg.Token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	return conn, err
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleTransportLoss(conn)
			return
		}

		var evt models.ServerEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			logger.Debug("session: dropping malformed event: %v", err)
			continue
		}
		s.emit(&evt)
	}
}

// emit dispatches one event to its kind's subscribers. Handlers are
// snapshotted under the lock and invoked outside it.
func (s *Session) emit(evt *models.ServerEvent) {
	s.mu.Lock()
	hs := make([]Handler, 0, len(s.subs[evt.Type]))
	for _, h := range s.subs[evt.Type] {
		hs = append(hs, h)
	}
	s.mu.Unlock()

	for _, h := range hs {
		h(evt)
	}
}

// handleTransportLoss starts the reconnect state machine, once per lost
// connection. A session that was closed or already errored stays put.
func (s *Session) handleTransportLoss(conn *websocket.Conn) {
	conn.Close()

	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateReconnecting
	s.mu.Unlock()

	s.emit(&models.ServerEvent{Type: models.EventDisconnect})
	go s.reconnectLoop()
}

func (s *Session) reconnectLoop() {
	b := &backoff.Backoff{
		Min:    s.cfg.InitialBackoff,
		Max:    s.cfg.MaxBackoff,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; attempt <= s.cfg.MaxReconnectAttempts; attempt++ {
		time.Sleep(b.Duration())

		s.mu.Lock()
		if s.closed {
			s.state = StateDisconnected
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		conn, err := s.dial()
		if err != nil {
			logger.Debug("session reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.state = StateConnected
		joined := s.joined
		tripID := s.tripID
		info := s.userInfo
		s.mu.Unlock()

		s.emit(&models.ServerEvent{Type: models.EventConnect})
		go s.readLoop(conn)

		// Server-side membership did not survive the disconnect; rejoin
		// before any further updates.
		if joined {
			s.send(&models.ClientMessage{
				Type:     models.MessageTypeJoinRoom,
				TripID:   tripID,
				UserInfo: info,
			})
		}
		return
	}

	s.mu.Lock()
	s.state = StateErrored
	s.mu.Unlock()
	s.emit(&models.ServerEvent{
		Type:  models.EventConnectionError,
		Error: ErrMaxReconnectExceeded.Error(),
	})
}
