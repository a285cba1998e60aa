package app

import (
	"testing"
	"time"

	"presence_chat_service/internal/presence/domain"
	"presence_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func init() {
	logger.Log = logger.NewNop()
}

func statusOf(s domain.Status) *domain.Status { return &s }

func TestStore_OfflineOnlyWhenNoConnections(t *testing.T) {
	store := NewStore()
	identity := domain.Identity{UserID: "u1", Username: "alice"}
	now := time.Now()

	connA := uuid.New()
	connB := uuid.New()

	delta := store.RegisterConnection(connA, identity, now)
	assert.Equal(t, domain.StatusOnline, delta.Status)
	assert.True(t, store.IsOnline("u1"))

	store.RegisterConnection(connB, identity, now)

	// one connection down, the other keeps the user online
	delta = store.UnregisterConnection(connA, now)
	assert.Equal(t, domain.StatusOnline, delta.Status)
	assert.True(t, store.IsOnline("u1"))

	// last connection down: offline, lastSeen stamped
	delta = store.UnregisterConnection(connB, now)
	assert.Equal(t, domain.StatusOffline, delta.Status)
	assert.NotNil(t, delta.LastSeen)
	assert.False(t, store.IsOnline("u1"))
	assert.Equal(t, domain.StatusOffline, store.Status("u1"))
}

func TestStore_AggregateTakesHighestRank(t *testing.T) {
	store := NewStore()
	identity := domain.Identity{UserID: "u1", Username: "alice"}
	now := time.Now()

	connA := uuid.New()
	connB := uuid.New()
	store.RegisterConnection(connA, identity, now)
	store.RegisterConnection(connB, identity, now.Add(time.Millisecond))

	// one tab goes away, the other is still online
	delta := store.UpdateStatus(connA, statusOf(domain.StatusAway), nil, now.Add(time.Second))
	assert.Equal(t, domain.StatusOnline, delta.Status)

	// both away: aggregate decays
	delta = store.UpdateStatus(connB, statusOf(domain.StatusAway), nil, now.Add(2*time.Second))
	assert.Equal(t, domain.StatusAway, delta.Status)

	// busy outranks away
	delta = store.UpdateStatus(connA, statusOf(domain.StatusBusy), nil, now.Add(3*time.Second))
	assert.Equal(t, domain.StatusBusy, delta.Status)
}

func TestStore_StaleUpdateNeverWins(t *testing.T) {
	store := NewStore()
	identity := domain.Identity{UserID: "u1", Username: "alice"}
	now := time.Now()

	connID := uuid.New()
	store.RegisterConnection(connID, identity, now)

	delta := store.UpdateStatus(connID, statusOf(domain.StatusBusy), nil, now.Add(time.Second))
	assert.Equal(t, domain.StatusBusy, delta.Status)

	// an event timestamped before the applied one is dropped
	delta = store.UpdateStatus(connID, statusOf(domain.StatusAway), nil, now.Add(-time.Second))
	assert.Nil(t, delta)
	assert.Equal(t, domain.StatusBusy, store.Status("u1"))
}

func TestStore_UpdateUnknownConnectionIgnored(t *testing.T) {
	store := NewStore()
	delta := store.UpdateStatus(uuid.New(), statusOf(domain.StatusAway), nil, time.Now())
	assert.Nil(t, delta)
}

func TestStore_ActivityPartialUpdate(t *testing.T) {
	store := NewStore()
	identity := domain.Identity{UserID: "u1", Username: "alice"}
	now := time.Now()

	connID := uuid.New()
	store.RegisterConnection(connID, identity, now)

	activity := "composing a track"
	delta := store.UpdateStatus(connID, nil, &activity, now.Add(time.Second))
	assert.Equal(t, domain.StatusOnline, delta.Status)
	assert.Equal(t, activity, *delta.Activity)

	// status-only update keeps the activity
	delta = store.UpdateStatus(connID, statusOf(domain.StatusBusy), nil, now.Add(2*time.Second))
	assert.Equal(t, activity, *delta.Activity)
}

func TestStore_SnapshotAndUsernames(t *testing.T) {
	store := NewStore()
	now := time.Now()

	store.RegisterConnection(uuid.New(), domain.Identity{UserID: "u1", Username: "alice"}, now)
	store.RegisterConnection(uuid.New(), domain.Identity{UserID: "u2", Username: "bob"}, now)

	snapshot := store.Snapshot()
	assert.Len(t, snapshot, 2)

	names := store.Usernames()
	assert.Equal(t, "u1", names["alice"])
	assert.Equal(t, "u2", names["bob"])
}

func TestStore_StaleConnections(t *testing.T) {
	store := NewStore()
	now := time.Now()

	quiet := uuid.New()
	active := uuid.New()
	store.RegisterConnection(quiet, domain.Identity{UserID: "u1"}, now)
	store.RegisterConnection(active, domain.Identity{UserID: "u2"}, now)

	store.Touch(active, now.Add(80*time.Second))

	stale := store.StaleConnections(now.Add(100*time.Second), 90*time.Second)
	assert.Equal(t, []uuid.UUID{quiet}, stale)
}
