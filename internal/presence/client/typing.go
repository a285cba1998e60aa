package client

import (
	"encoding/json"
	"sync"
	"time"

	"presence_chat_service/internal/presence/domain"
)

// TypingTracker who is typing where. Typing is a liveness signal, not a
// queued event: an entry that is not refreshed expires on its own, so a
// peer that vanished mid-keystroke never sticks around.
type TypingTracker struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]map[string]*time.Timer
}

// NewTypingTracker create the tracker; entries live for ttl unless refreshed
func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &TypingTracker{
		ttl:     ttl,
		entries: make(map[string]map[string]*time.Timer),
	}
}

// Apply fold a typing:start / typing:stop frame into the tracker
func (tr *TypingTracker) Apply(env domain.Envelope) {
	var notice domain.TypingNotice
	if err := json.Unmarshal(env.Data, &notice); err != nil {
		return
	}

	switch env.Event {
	case domain.EventTypingStart:
		tr.start(notice.ChannelID, notice.UserID)
	case domain.EventTypingStop:
		tr.stop(notice.ChannelID, notice.UserID)
	}
}

// Typing user ids currently typing in the channel
func (tr *TypingTracker) Typing(channelID string) []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	var out []string
	for userID := range tr.entries[channelID] {
		out = append(out, userID)
	}
	return out
}

func (tr *TypingTracker) start(channelID, userID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	byUser, ok := tr.entries[channelID]
	if !ok {
		byUser = make(map[string]*time.Timer)
		tr.entries[channelID] = byUser
	}

	if timer, ok := byUser[userID]; ok {
		timer.Reset(tr.ttl)
		return
	}
	byUser[userID] = time.AfterFunc(tr.ttl, func() {
		tr.stop(channelID, userID)
	})
}

func (tr *TypingTracker) stop(channelID, userID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	byUser, ok := tr.entries[channelID]
	if !ok {
		return
	}
	if timer, ok := byUser[userID]; ok {
		timer.Stop()
		delete(byUser, userID)
	}
	if len(byUser) == 0 {
		delete(tr.entries, channelID)
	}
}
