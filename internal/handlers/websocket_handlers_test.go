package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/internal/auth"
	"tripsync/internal/config"
	"tripsync/internal/models"
	"tripsync/internal/relay"
)

var testSecret = []byte("test-secret")

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: testSecret},
		Relay: config.RelayConfig{
			PingInterval:    25 * time.Second,
			PongTimeout:     55 * time.Second,
			RoomGracePeriod: 50 * time.Millisecond,
			SendBuffer:      64,
		},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	srv, _ := newTestServerWithConfig(t, testConfig())
	return srv
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) (*httptest.Server, *relay.Manager) {
	t.Helper()
	authService := auth.NewService(cfg)
	registry := relay.NewRegistry(cfg.Relay.RoomGracePeriod)
	bcast := relay.NewBroadcaster(registry)
	manager := relay.NewManager(registry, bcast)

	roomHandlers := NewRoomHandlers(registry, manager, authService)
	wsHandlers := NewWebSocketHandlers(authService, manager, bcast, cfg.Relay)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
	mux.HandleFunc("/healthz", roomHandlers.Health)
	mux.HandleFunc("/rooms/", roomHandlers.GetActiveUsers)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, manager
}

func mintToken(t *testing.T, uid, name string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":          uid,
		"display_name": name,
		"exp":          time.Now().Add(time.Hour).Unix(),
		"iat":          time.Now().Unix(),
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func dialWS(t *testing.T, srv *httptest.Server, uid, name string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, mintToken(t, uid, name)), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg models.ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readEvent reads exactly the next event. Broadcasts for one recipient
// are FIFO, so tests assert strict sequences; an unexpected event kind
// shows up as a sequence mismatch rather than being skipped.
func readEvent(t *testing.T, conn *websocket.Conn) models.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err, "waiting for next event")
	var evt models.ServerEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	srv := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCollaborationScenario(t *testing.T) {
	srv := newTestServer(t)

	// A joins trip-42 and sees a roster of one.
	connA := dialWS(t, srv, "alice", "Alice")
	sendMsg(t, connA, models.ClientMessage{Type: models.MessageTypeJoinRoom, TripID: "trip-42"})
	evt := readEvent(t, connA)
	require.Equal(t, models.EventPresenceUpdate, evt.Type)
	assert.Equal(t, 1, evt.UserCount)

	// B joins; A sees the incremental actor then the new roster, B sees
	// the roster.
	connB := dialWS(t, srv, "bob", "Bob")
	sendMsg(t, connB, models.ClientMessage{Type: models.MessageTypeJoinRoom, TripID: "trip-42"})

	evt = readEvent(t, connA)
	require.Equal(t, models.EventUserJoined, evt.Type)
	assert.Equal(t, "bob", evt.UserID)
	evt = readEvent(t, connA)
	require.Equal(t, models.EventPresenceUpdate, evt.Type)
	assert.Equal(t, 2, evt.UserCount)

	evt = readEvent(t, connB)
	require.Equal(t, models.EventPresenceUpdate, evt.Type)
	assert.Equal(t, 2, evt.UserCount)

	// A updates day 3; B receives exactly one itinerary-updated.
	activity, _ := json.Marshal(map[string]string{"title": "museum visit"})
	sendMsg(t, connA, models.ClientMessage{
		Type:         models.MessageTypeItineraryUpdate,
		TripID:       "trip-42",
		Day:          3,
		ActivityData: activity,
		Action:       "add",
	})

	evt = readEvent(t, connB)
	require.Equal(t, models.EventItineraryUpdated, evt.Type)
	assert.Equal(t, 3, evt.Day)
	assert.Equal(t, "alice", evt.UserID)
	assert.JSONEq(t, string(activity), string(evt.ActivityData))

	// B disconnects. A's next events are the departure and the shrunken
	// roster; if the itinerary update had leaked back to its originator
	// it would surface here as a sequence mismatch.
	connB.Close()
	evt = readEvent(t, connA)
	require.Equal(t, models.EventUserLeft, evt.Type)
	assert.Equal(t, "bob", evt.UserID)
	evt = readEvent(t, connA)
	require.Equal(t, models.EventPresenceUpdate, evt.Type)
	assert.Equal(t, 1, evt.UserCount)
}

func TestTypingClearedOnAbruptDisconnect(t *testing.T) {
	srv := newTestServer(t)

	connA := dialWS(t, srv, "alice", "Alice")
	sendMsg(t, connA, models.ClientMessage{Type: models.MessageTypeJoinRoom, TripID: "trip-7"})
	require.Equal(t, models.EventPresenceUpdate, readEvent(t, connA).Type)

	connB := dialWS(t, srv, "bob", "Bob")
	sendMsg(t, connB, models.ClientMessage{Type: models.MessageTypeJoinRoom, TripID: "trip-7"})
	require.Equal(t, models.EventPresenceUpdate, readEvent(t, connB).Type)

	sendMsg(t, connA, models.ClientMessage{
		Type:   models.MessageTypeTypingStart,
		TripID: "trip-7",
		Field:  "notes",
	})
	evt := readEvent(t, connB)
	require.Equal(t, models.EventUserTyping, evt.Type)
	assert.True(t, evt.IsTyping)
	assert.Equal(t, "notes", evt.Field)

	// A vanishes without typing-stop; B must not be left with a ghost
	// indicator.
	connA.Close()
	evt = readEvent(t, connB)
	require.Equal(t, models.EventUserTyping, evt.Type)
	assert.False(t, evt.IsTyping)
	assert.Equal(t, "alice", evt.UserID)
	assert.Equal(t, "notes", evt.Field)

	evt = readEvent(t, connB)
	require.Equal(t, models.EventUserLeft, evt.Type)
	assert.Equal(t, "alice", evt.UserID)
}

func TestActionWithoutJoinReturnsError(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv, "alice", "Alice")
	sendMsg(t, conn, models.ClientMessage{
		Type:   models.MessageTypeTripUpdate,
		TripID: "trip-42",
	})

	evt := readEvent(t, conn)
	require.Equal(t, models.EventError, evt.Type)
	assert.Contains(t, evt.Error, "not in room")
}

func TestMalformedMessageRejectedNotFatal(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv, "alice", "Alice")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	evt := readEvent(t, conn)
	require.Equal(t, models.EventError, evt.Type)
	assert.Equal(t, "bad json", evt.Error)

	// The connection survives and works normally afterwards.
	sendMsg(t, conn, models.ClientMessage{Type: models.MessageTypePing})
	evt = readEvent(t, conn)
	require.Equal(t, models.EventPong, evt.Type)
}

func TestPingPong(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv, "alice", "Alice")
	sendMsg(t, conn, models.ClientMessage{Type: models.MessageTypePing})
	evt := readEvent(t, conn)
	require.Equal(t, models.EventPong, evt.Type)
	assert.NotEmpty(t, evt.Timestamp)
}

func TestIdlePeerEvictedWithinTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Relay.PingInterval = 50 * time.Millisecond
	cfg.Relay.PongTimeout = 120 * time.Millisecond
	srv, _ := newTestServerWithConfig(t, cfg)

	// Alice swallows the relay's pings, so from the relay's side she has
	// gone silent even though her socket stays open.
	connA := dialWS(t, srv, "alice", "Alice")
	connA.SetPingHandler(func(string) error { return nil })
	sendMsg(t, connA, models.ClientMessage{Type: models.MessageTypeJoinRoom, TripID: "trip-idle"})
	require.Equal(t, models.EventPresenceUpdate, readEvent(t, connA).Type)

	connB := dialWS(t, srv, "bob", "Bob")
	sendMsg(t, connB, models.ClientMessage{Type: models.MessageTypeJoinRoom, TripID: "trip-idle"})
	require.Equal(t, models.EventPresenceUpdate, readEvent(t, connB).Type)

	// Bob keeps answering pings through his reads; alice must be forced
	// out once the pong deadline lapses, well within the read timeout.
	start := time.Now()
	evt := readEvent(t, connB)
	require.Equal(t, models.EventUserLeft, evt.Type)
	assert.Equal(t, "alice", evt.UserID)
	assert.Less(t, time.Since(start), time.Second,
		"eviction must happen within the pong-timeout bound")

	evt = readEvent(t, connB)
	require.Equal(t, models.EventPresenceUpdate, evt.Type)
	assert.Equal(t, 1, evt.UserCount)
}

func TestShutdownClosesConnections(t *testing.T) {
	srv, manager := newTestServerWithConfig(t, testConfig())

	conn := dialWS(t, srv, "alice", "Alice")
	sendMsg(t, conn, models.ClientMessage{Type: models.MessageTypeJoinRoom, TripID: "trip-42"})
	require.Equal(t, models.EventPresenceUpdate, readEvent(t, conn).Type)

	manager.Shutdown("relay shutting down")

	// The notice arrives first, then a proper close frame rather than an
	// abandoned socket.
	evt := readEvent(t, conn)
	require.Equal(t, models.EventSystemMessage, evt.Type)
	assert.Equal(t, "relay shutting down", evt.Message)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

func TestActiveUsersEndpoint(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWS(t, srv, "alice", "Alice")
	sendMsg(t, conn, models.ClientMessage{Type: models.MessageTypeJoinRoom, TripID: "trip-9"})
	require.Equal(t, models.EventPresenceUpdate, readEvent(t, conn).Type)

	resp, err := http.Get(srv.URL + "/rooms/trip-9/active?token=" + mintToken(t, "carol", "Carol"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap models.RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "trip-9", snap.TripID)
	require.Len(t, snap.Presence, 1)
	assert.Equal(t, "alice", snap.Presence[0].UserID)

	// A trip with no live room answers with an empty roster, not 404.
	resp2, err := http.Get(srv.URL + "/rooms/trip-nobody/active?token=" + mintToken(t, "carol", "Carol"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&snap))
	assert.Equal(t, 0, snap.UserCount)

	// Missing token is refused.
	resp3, err := http.Get(srv.URL + "/rooms/trip-9/active")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp3.StatusCode)
}
