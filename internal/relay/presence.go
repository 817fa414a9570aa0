package relay

import (
	"sort"
	"time"

	"tripsync/internal/models"
)

// presenceEntry tracks one user's connections within a room. An entry
// exists iff the user has at least one joined connection; the directory
// derives everything else from that set.
type presenceEntry struct {
	userID      string
	displayName string
	photoURL    string
	conns       map[string]struct{}
	lastAction  string
	joinedAt    time.Time
	lastSeen    time.Time
}

// presenceDirectory is the per-room user roster. All methods must be
// called with the owning room's lock held.
type presenceDirectory struct {
	entries map[string]*presenceEntry
}

func newPresenceDirectory() *presenceDirectory {
	return &presenceDirectory{entries: make(map[string]*presenceEntry)}
}

// upsert merges a connection into the user's entry, creating the entry on
// the user's first connection. Reports whether the user was previously
// absent from the room.
func (d *presenceDirectory) upsert(user models.Identity, connID string, info *models.UserInfo) bool {
	now := time.Now()
	e, ok := d.entries[user.UID]
	if !ok {
		e = &presenceEntry{
			userID:      user.UID,
			displayName: user.DisplayName,
			photoURL:    user.PhotoURL,
			conns:       make(map[string]struct{}),
			lastAction:  "joined",
			joinedAt:    now,
		}
		d.entries[user.UID] = e
	}
	if info != nil {
		if info.DisplayName != "" {
			e.displayName = info.DisplayName
		}
		if info.PhotoURL != "" {
			e.photoURL = info.PhotoURL
		}
	}
	e.conns[connID] = struct{}{}
	e.lastSeen = now
	return !ok
}

// dropConn removes one connection from the user's entry. Reports whether
// that was the user's last connection, removing the entry if so.
func (d *presenceDirectory) dropConn(userID, connID string) bool {
	e, ok := d.entries[userID]
	if !ok {
		return false
	}
	delete(e.conns, connID)
	if len(e.conns) == 0 {
		delete(d.entries, userID)
		return true
	}
	return false
}

// touch refreshes a user's last-seen time and last-action label.
func (d *presenceDirectory) touch(userID, action string) {
	if e, ok := d.entries[userID]; ok {
		e.lastSeen = time.Now()
		if action != "" {
			e.lastAction = action
		}
	}
}

// snapshot returns the roster ordered by join time, earliest first.
func (d *presenceDirectory) snapshot() []models.PresenceEntry {
	out := make([]models.PresenceEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, models.PresenceEntry{
			UserID:      e.userID,
			DisplayName: e.displayName,
			PhotoURL:    e.photoURL,
			Connections: len(e.conns),
			LastAction:  e.lastAction,
			JoinedAt:    e.joinedAt,
			LastSeen:    e.lastSeen,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
