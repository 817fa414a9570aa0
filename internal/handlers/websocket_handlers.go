package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"tripsync/internal/auth"
	"tripsync/internal/config"
	"tripsync/internal/relay"
	ws "tripsync/internal/websocket"
	"tripsync/pkg/logger"
)

type WebSocketHandlers struct {
	authService *auth.Service
	manager     *relay.Manager
	bcast       *relay.Broadcaster
	cfg         config.RelayConfig
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, manager *relay.Manager, bcast *relay.Broadcaster, cfg config.RelayConfig) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		manager:     manager,
		bcast:       bcast,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket verifies the identity token, upgrades the transport,
// and hands the connection to the relay. Identity is settled before the
// upgrade so an unauthenticated peer never holds a socket.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity, err := h.authService.VerifyToken(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, h.manager, h.bcast, h.cfg)
	if err := client.Start(*identity); err != nil {
		logger.Error("Error admitting connection: %v", err)
		return
	}
}
