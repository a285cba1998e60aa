package client

import (
	"testing"
	"time"

	"presence_chat_service/internal/presence/domain"

	"github.com/stretchr/testify/assert"
)

func typingFrame(t *testing.T, event domain.Event, channelID, userID string) domain.Envelope {
	t.Helper()
	return frame(t, event, domain.TypingNotice{ChannelID: channelID, UserID: userID, Username: userID})
}

func TestTypingTracker_StartAndStop(t *testing.T) {
	tr := NewTypingTracker(time.Minute)

	tr.Apply(typingFrame(t, domain.EventTypingStart, "ch", "u1"))
	assert.Equal(t, []string{"u1"}, tr.Typing("ch"))

	tr.Apply(typingFrame(t, domain.EventTypingStop, "ch", "u1"))
	assert.Empty(t, tr.Typing("ch"))
}

func TestTypingTracker_ExpiresWithoutRefresh(t *testing.T) {
	tr := NewTypingTracker(30 * time.Millisecond)

	tr.Apply(typingFrame(t, domain.EventTypingStart, "ch", "u1"))
	assert.Equal(t, []string{"u1"}, tr.Typing("ch"))

	assert.Eventually(t, func() bool {
		return len(tr.Typing("ch")) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTypingTracker_RefreshDefersExpiry(t *testing.T) {
	tr := NewTypingTracker(50 * time.Millisecond)

	tr.Apply(typingFrame(t, domain.EventTypingStart, "ch", "u1"))
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		tr.Apply(typingFrame(t, domain.EventTypingStart, "ch", "u1"))
	}
	assert.Equal(t, []string{"u1"}, tr.Typing("ch"))
}

func TestTypingTracker_ChannelsIsolated(t *testing.T) {
	tr := NewTypingTracker(time.Minute)

	tr.Apply(typingFrame(t, domain.EventTypingStart, "ch-1", "u1"))
	tr.Apply(typingFrame(t, domain.EventTypingStart, "ch-2", "u2"))

	assert.Equal(t, []string{"u1"}, tr.Typing("ch-1"))
	assert.Equal(t, []string{"u2"}, tr.Typing("ch-2"))
}
