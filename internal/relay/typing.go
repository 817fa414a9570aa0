package relay

import "time"

// typingTracker holds the per-room "who is typing which field" state. A
// user types at most one field at a time; a later start supersedes an
// earlier one without needing a stop in between. All methods must be
// called with the owning room's lock held.
type typingTracker struct {
	byUser map[string]typingEntry
}

type typingEntry struct {
	field string
	since time.Time
}

func newTypingTracker() *typingTracker {
	return &typingTracker{byUser: make(map[string]typingEntry)}
}

func (t *typingTracker) start(userID, field string) {
	t.byUser[userID] = typingEntry{field: field, since: time.Now()}
}

// stop clears the user's entry only when the stored field matches,
// guarding against an out-of-order stop for a field the user already
// moved away from. Reports whether anything was cleared.
func (t *typingTracker) stop(userID, field string) bool {
	e, ok := t.byUser[userID]
	if !ok || e.field != field {
		return false
	}
	delete(t.byUser, userID)
	return true
}

// clear drops the user's entry regardless of field, for leave/disconnect
// cleanup. Returns the field that was active, if any.
func (t *typingTracker) clear(userID string) (string, bool) {
	e, ok := t.byUser[userID]
	if !ok {
		return "", false
	}
	delete(t.byUser, userID)
	return e.field, true
}
