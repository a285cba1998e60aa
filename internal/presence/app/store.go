package app

import (
	"time"

	"presence_chat_service/internal/presence/domain"

	"github.com/google/uuid"
)

// connState one open connection's contribution to its user's presence
type connState struct {
	userID      string
	status      domain.Status
	lastTraffic time.Time
}

// userRecord authoritative record plus the open connection set
type userRecord struct {
	user  domain.PresenceUser
	conns map[uuid.UUID]*connState

	// updatedAt latest event timestamp applied; stale events never win.
	// Cross-connection ties resolve by hub arrival order on top of this.
	updatedAt time.Time
}

// Store authoritative presence table. Single-writer: only the hub loop
// calls into it, so there is no locking here.
type Store struct {
	conns map[uuid.UUID]*connState
	users map[string]*userRecord
}

// NewStore create the presence store
func NewStore() *Store {
	return &Store{
		conns: make(map[uuid.UUID]*connState),
		users: make(map[string]*userRecord),
	}
}

// RegisterConnection add the connection to the user's set, recompute the
// aggregate and return the delta to broadcast
func (s *Store) RegisterConnection(connID uuid.UUID, identity domain.Identity, at time.Time) *domain.PresenceDelta {
	conn := &connState{
		userID:      identity.UserID,
		status:      domain.StatusOnline,
		lastTraffic: at,
	}
	s.conns[connID] = conn

	rec, ok := s.users[identity.UserID]
	if !ok {
		rec = &userRecord{
			user: domain.PresenceUser{
				UserID:   identity.UserID,
				Username: identity.Username,
				Avatar:   identity.Avatar,
			},
			conns: make(map[uuid.UUID]*connState),
		}
		s.users[identity.UserID] = rec
	}
	// profile fields refresh on every handshake
	rec.user.Username = identity.Username
	rec.user.Avatar = identity.Avatar
	rec.user.LastSeen = nil
	rec.conns[connID] = conn
	rec.updatedAt = at

	return s.recompute(rec)
}

// UpdateStatus apply a presence:update from one connection. Last write
// wins by event timestamp: a stale event must never overwrite a newer one.
// Returns nil when nothing visible changed.
func (s *Store) UpdateStatus(connID uuid.UUID, status *domain.Status, activity *string, at time.Time) *domain.PresenceDelta {
	conn, ok := s.conns[connID]
	if !ok {
		return nil
	}
	rec := s.users[conn.userID]
	if rec == nil {
		return nil
	}
	if at.Before(rec.updatedAt) {
		return nil
	}
	rec.updatedAt = at

	if status != nil && status.Valid() {
		conn.status = *status
	}
	if activity != nil {
		rec.user.Activity = *activity
	}
	return s.recompute(rec)
}

// Touch record inbound traffic for the liveness sweep
func (s *Store) Touch(connID uuid.UUID, at time.Time) {
	if conn, ok := s.conns[connID]; ok {
		conn.lastTraffic = at
	}
}

// UnregisterConnection remove the connection; when the user's set becomes
// empty the aggregate goes offline and lastSeen is stamped
func (s *Store) UnregisterConnection(connID uuid.UUID, at time.Time) *domain.PresenceDelta {
	conn, ok := s.conns[connID]
	if !ok {
		return nil
	}
	delete(s.conns, connID)

	rec := s.users[conn.userID]
	if rec == nil {
		return nil
	}
	delete(rec.conns, connID)

	if len(rec.conns) == 0 {
		delete(s.users, conn.userID)
		lastSeen := at
		rec.user.Status = domain.StatusOffline
		rec.user.LastSeen = &lastSeen
		return &domain.PresenceDelta{
			UserID:   rec.user.UserID,
			Status:   domain.StatusOffline,
			LastSeen: &lastSeen,
		}
	}
	return s.recompute(rec)
}

// UserOf the user a connection belongs to
func (s *Store) UserOf(connID uuid.UUID) (string, bool) {
	conn, ok := s.conns[connID]
	if !ok {
		return "", false
	}
	return conn.userID, true
}

// IsOnline the user has at least one open connection
func (s *Store) IsOnline(userID string) bool {
	_, ok := s.users[userID]
	return ok
}

// Status aggregate status of a user, offline when no connections remain
func (s *Store) Status(userID string) domain.Status {
	rec, ok := s.users[userID]
	if !ok {
		return domain.StatusOffline
	}
	return rec.user.Status
}

// Snapshot presence:list payload: every currently connected user
func (s *Store) Snapshot() []domain.PresenceUser {
	out := make([]domain.PresenceUser, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec.user)
	}
	return out
}

// Usernames username -> userId for mention scanning
func (s *Store) Usernames() map[string]string {
	out := make(map[string]string, len(s.users))
	for _, rec := range s.users {
		out[rec.user.Username] = rec.user.UserID
	}
	return out
}

// StaleConnections connections without inbound traffic for longer than
// timeout; no heartbeat protocol, this sweep is the only pruning path
// besides transport-reported closure
func (s *Store) StaleConnections(now time.Time, timeout time.Duration) []uuid.UUID {
	var stale []uuid.UUID
	for id, conn := range s.conns {
		if now.Sub(conn.lastTraffic) > timeout {
			stale = append(stale, id)
		}
	}
	return stale
}

// recompute reduce the user's connections into the aggregate status:
// online if any connection is online, then busy, then away
func (s *Store) recompute(rec *userRecord) *domain.PresenceDelta {
	best := domain.StatusAway
	first := true
	for _, conn := range rec.conns {
		if first || conn.status.Rank() > best.Rank() {
			best = conn.status
			first = false
		}
	}

	rec.user.Status = best

	activity := rec.user.Activity
	return &domain.PresenceDelta{
		UserID:   rec.user.UserID,
		Username: rec.user.Username,
		Avatar:   rec.user.Avatar,
		Status:   best,
		Activity: &activity,
	}
}
