package client

import (
	"encoding/json"

	"presence_chat_service/internal/presence/domain"
)

// ReducePresence pure reducer over (current view, incoming frame). The
// server is authoritative; this only maintains the local replica the UI
// renders. Unknown events leave the view untouched.
//
// presence:list replaces the view wholly. presence:update merges the
// provided fields into the matching entry; a delta carrying offline
// removes the entry instead of keeping a zombie around.
func ReducePresence(current []domain.PresenceUser, env domain.Envelope) []domain.PresenceUser {
	switch env.Event {
	case domain.EventPresenceList:
		var list []domain.PresenceUser
		if err := json.Unmarshal(env.Data, &list); err != nil {
			return current
		}
		return list

	case domain.EventPresenceUpdate:
		var delta domain.PresenceDelta
		if err := json.Unmarshal(env.Data, &delta); err != nil {
			return current
		}
		return applyDelta(current, delta)

	default:
		return current
	}
}

func applyDelta(current []domain.PresenceUser, delta domain.PresenceDelta) []domain.PresenceUser {
	if delta.Status == domain.StatusOffline || delta.Status == "" {
		out := make([]domain.PresenceUser, 0, len(current))
		for _, u := range current {
			if u.UserID != delta.UserID {
				out = append(out, u)
			}
		}
		return out
	}

	out := make([]domain.PresenceUser, len(current))
	copy(out, current)
	for i := range out {
		if out[i].UserID == delta.UserID {
			mergeDelta(&out[i], delta)
			return out
		}
	}
	// first sighting of this user
	added := domain.PresenceUser{UserID: delta.UserID}
	mergeDelta(&added, delta)
	return append(out, added)
}

// mergeDelta partial update: absent fields leave the entry unchanged
func mergeDelta(u *domain.PresenceUser, delta domain.PresenceDelta) {
	if delta.Username != "" {
		u.Username = delta.Username
	}
	if delta.Avatar != "" {
		u.Avatar = delta.Avatar
	}
	if delta.Status != "" {
		u.Status = delta.Status
	}
	if delta.Activity != nil {
		u.Activity = *delta.Activity
	}
	if delta.LastSeen != nil {
		u.LastSeen = delta.LastSeen
	}
}
