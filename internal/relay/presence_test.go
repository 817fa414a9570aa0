package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/internal/models"
)

func TestPresenceDirectory_SingleEntryPerUser(t *testing.T) {
	d := newPresenceDirectory()
	alice := models.Identity{UID: "alice", DisplayName: "Alice"}

	first := d.upsert(alice, "conn-1", nil)
	assert.True(t, first, "first connection should report a new user")

	// Second tab for the same user
	second := d.upsert(alice, "conn-2", nil)
	assert.False(t, second, "second connection must not report a new user")

	snap := d.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "alice", snap[0].UserID)
	assert.Equal(t, 2, snap[0].Connections)
}

func TestPresenceDirectory_EntryRemovedWithLastConnection(t *testing.T) {
	d := newPresenceDirectory()
	alice := models.Identity{UID: "alice", DisplayName: "Alice"}
	d.upsert(alice, "conn-1", nil)
	d.upsert(alice, "conn-2", nil)

	last := d.dropConn("alice", "conn-1")
	assert.False(t, last)
	require.Len(t, d.snapshot(), 1)

	last = d.dropConn("alice", "conn-2")
	assert.True(t, last)
	assert.Empty(t, d.snapshot())
}

func TestPresenceDirectory_SnapshotOrderedByJoinTime(t *testing.T) {
	d := newPresenceDirectory()
	d.upsert(models.Identity{UID: "alice", DisplayName: "Alice"}, "c1", nil)
	time.Sleep(2 * time.Millisecond)
	d.upsert(models.Identity{UID: "bob", DisplayName: "Bob"}, "c2", nil)
	time.Sleep(2 * time.Millisecond)
	d.upsert(models.Identity{UID: "carol", DisplayName: "Carol"}, "c3", nil)

	snap := d.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "alice", snap[0].UserID)
	assert.Equal(t, "bob", snap[1].UserID)
	assert.Equal(t, "carol", snap[2].UserID)
}

func TestPresenceDirectory_UserInfoOverridesIdentity(t *testing.T) {
	d := newPresenceDirectory()
	d.upsert(models.Identity{UID: "alice", DisplayName: "Alice", PhotoURL: "a.png"}, "c1",
		&models.UserInfo{DisplayName: "Ally"})

	snap := d.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Ally", snap[0].DisplayName)
	assert.Equal(t, "a.png", snap[0].PhotoURL, "unset info fields keep identity values")
}

func TestPresenceDirectory_Touch(t *testing.T) {
	d := newPresenceDirectory()
	d.upsert(models.Identity{UID: "alice"}, "c1", nil)

	before := d.snapshot()[0].LastSeen
	time.Sleep(2 * time.Millisecond)
	d.touch("alice", "editing budget")

	snap := d.snapshot()
	assert.Equal(t, "editing budget", snap[0].LastAction)
	assert.True(t, snap[0].LastSeen.After(before))

	// Touching an absent user is a no-op
	d.touch("nobody", "x")
	assert.Len(t, d.snapshot(), 1)
}
