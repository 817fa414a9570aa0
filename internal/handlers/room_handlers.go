package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tripsync/internal/auth"
	"tripsync/internal/models"
	"tripsync/internal/relay"
)

// RoomHandlers serves the REST views of live relay state: health and the
// per-trip presence snapshot. Durable trip data lives in the document
// store and is not reachable through here.
type RoomHandlers struct {
	registry    *relay.Registry
	manager     *relay.Manager
	authService *auth.Service
}

func NewRoomHandlers(registry *relay.Registry, manager *relay.Manager, authService *auth.Service) *RoomHandlers {
	return &RoomHandlers{
		registry:    registry,
		manager:     manager,
		authService: authService,
	}
}

func (h *RoomHandlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"rooms":       len(h.registry.Rooms()),
		"connections": h.manager.ConnectionCount(),
	})
}

// GetActiveUsers returns the presence roster for a trip's room. A trip
// with no live room reports an empty roster rather than 404, since "no
// one is collaborating" is a normal state.
func (h *RoomHandlers) GetActiveUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := h.identityFromToken(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	tripID, err := h.getTripIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid trip ID", http.StatusBadRequest)
		return
	}

	presence := h.registry.Presence(tripID)
	if presence == nil {
		presence = []models.PresenceEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.RoomSnapshot{
		TripID:    tripID,
		Presence:  presence,
		UserCount: len(presence),
	})
}

func (h *RoomHandlers) identityFromToken(r *http.Request) (*models.Identity, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		return nil, fmt.Errorf("missing token")
	}
	return h.authService.VerifyToken(tokenStr)
}

func (h *RoomHandlers) getTripIDFromPath(r *http.Request) (string, error) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("invalid path")
	}
	return parts[2], nil
}
