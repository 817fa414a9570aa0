package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripsync/internal/auth"
	"tripsync/internal/config"
	"tripsync/internal/handlers"
	"tripsync/internal/relay"
	"tripsync/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Identity verification for the websocket handshake
	authService := auth.NewService(cfg)

	// Relay core: room registry, broadcaster, connection lifecycle
	registry := relay.NewRegistry(cfg.Relay.RoomGracePeriod)
	bcast := relay.NewBroadcaster(registry)
	manager := relay.NewManager(registry, bcast)

	// Initialize handlers
	roomHandlers := handlers.NewRoomHandlers(registry, manager, authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, manager, bcast, cfg.Relay)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, roomHandlers, wsHandlers)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("🚀 Relay started on http://localhost%s", cfg.Server.Port)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Relay shutting down...")

	// Closes the websocket transports too; server.Shutdown cannot reach
	// those hijacked connections itself.
	manager.Shutdown("relay shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

func setupRoutes(mux *http.ServeMux, roomHandlers *handlers.RoomHandlers, wsHandlers *handlers.WebSocketHandlers) {
	mux.HandleFunc("/healthz", roomHandlers.Health)

	// /rooms/{tripId}/active
	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && len(r.URL.Path) > len("/rooms/") &&
			hasSuffixSegment(r.URL.Path, "active") {
			roomHandlers.GetActiveUsers(w, r)
			return
		}
		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func hasSuffixSegment(path, segment string) bool {
	if len(path) == 0 || path[len(path)-1] == '/' {
		return false
	}
	idx := len(path) - len(segment)
	return idx > 0 && path[idx:] == segment && path[idx-1] == '/'
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   GET  /healthz")
	logger.Info("   GET  /rooms/{tripId}/active")
	logger.Info("   WS   /ws?token=...")
}
