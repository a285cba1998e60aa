package domain

import "time"

// Status definition user presence status
type Status string

const (
	// StatusOnline user has an active connection and recent activity
	StatusOnline Status = "online"
	// StatusAway user idle beyond the idle timeout
	StatusAway Status = "away"
	// StatusBusy manually selected, never auto-transitioned
	StatusBusy Status = "busy"
	// StatusOffline zero open connections
	StatusOffline Status = "offline"
)

// Valid check the status is one of the known values
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Rank order statuses for the per-user aggregate reduction,
// online > busy > away; offline only with zero connections
func (s Status) Rank() int {
	switch s {
	case StatusOnline:
		return 3
	case StatusBusy:
		return 2
	case StatusAway:
		return 1
	}
	return 0
}

// PresenceUser one authoritative presence record per user
type PresenceUser struct {
	UserID   string     `json:"userId" bson:"user_id"`
	Username string     `json:"username" bson:"username"`
	Avatar   string     `json:"avatar,omitempty" bson:"avatar,omitempty"`
	Status   Status     `json:"status" bson:"status"`
	Activity string     `json:"activity,omitempty" bson:"activity,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty" bson:"last_seen,omitempty"`
}

// Identity profile fields presented at handshake
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}
