package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	chatapp "presence_chat_service/internal/chat/app"
	chatdomain "presence_chat_service/internal/chat/domain"
	chatrepo "presence_chat_service/internal/chat/repository"
	notifyapp "presence_chat_service/internal/notify/app"
	notifydomain "presence_chat_service/internal/notify/domain"
	"presence_chat_service/internal/presence/domain"

	"github.com/stretchr/testify/assert"
)

// loopbackPubSub in-process PubSub: publishes invoke subscribers
// synchronously in the caller's goroutine
type loopbackPubSub struct {
	mu   sync.Mutex
	subs map[string][]func(payload []byte)
}

func newLoopbackPubSub() *loopbackPubSub {
	return &loopbackPubSub{subs: make(map[string][]func(payload []byte))}
}

func (p *loopbackPubSub) Publish(channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	handlers := append([]func(payload []byte){}, p.subs[channel]...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
	return nil
}

func (p *loopbackPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	p.mu.Lock()
	p.subs[channel] = append(p.subs[channel], handler)
	p.mu.Unlock()
	return nil
}

type hubHarness struct {
	hub        *Hub
	store      *Store
	dispatcher *notifyapp.Dispatcher
	pubsub     *loopbackPubSub
}

func newHubHarness(t *testing.T, cfg HubConfig) *hubHarness {
	t.Helper()
	if cfg.LivenessTimeout == 0 {
		cfg.LivenessTimeout = time.Minute
	}
	if cfg.HistoryPageSize == 0 {
		cfg.HistoryPageSize = 50
	}

	pubsub := newLoopbackPubSub()
	store := NewStore()
	channelUC := chatapp.NewChannelUseCase(nil, pubsub)
	messageUC := chatapp.NewMessageUseCase(channelUC, nil, pubsub)
	dispatcher := notifyapp.NewDispatcher(pubsub, store.IsOnline, 10)

	hub := NewHub(store, channelUC, messageUC, dispatcher, pubsub, nil, cfg)
	go hub.Run()
	t.Cleanup(hub.Stop)

	return &hubHarness{hub: hub, store: store, dispatcher: dispatcher, pubsub: pubsub}
}

func (h *hubHarness) connect(t *testing.T, userID, username string) *Session {
	t.Helper()
	sess := NewSession(domain.Identity{UserID: userID, Username: username})
	h.hub.Register(sess)

	// barrier: frames sent before registration completes would be dropped
	assert.Eventually(t, func() bool {
		for _, u := range h.hub.Presence() {
			if u.UserID == userID {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return sess
}

// nextFrame the next frame on the session, decoded to the envelope
func nextFrame(t *testing.T, sess *Session) domain.Envelope {
	t.Helper()
	select {
	case payload, ok := <-sess.Send:
		if !ok {
			t.Fatal("session send channel closed")
		}
		var env domain.Envelope
		assert.NoError(t, json.Unmarshal(payload, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return domain.Envelope{}
	}
}

// awaitEvent read frames until one matches, discarding the rest
func awaitEvent(t *testing.T, sess *Session, event domain.Event) json.RawMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload, ok := <-sess.Send:
			if !ok {
				t.Fatalf("session closed while waiting for %s", event)
			}
			var env domain.Envelope
			assert.NoError(t, json.Unmarshal(payload, &env))
			if env.Event == event {
				return env.Data
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func send(h *hubHarness, sess *Session, event domain.Event, req domain.ClientRequest) {
	data, _ := json.Marshal(req)
	h.hub.HandleInbound(sess.ID, domain.Envelope{Event: event, Data: data})
}

func TestHub_RegisterSendsSnapshotThenDelta(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")

	env := nextFrame(t, alice)
	assert.Equal(t, domain.EventPresenceList, env.Event)

	var snapshot []domain.PresenceUser
	assert.NoError(t, json.Unmarshal(env.Data, &snapshot))
	assert.Len(t, snapshot, 1)
	assert.Equal(t, "u1", snapshot[0].UserID)

	// own register delta follows the snapshot
	env = nextFrame(t, alice)
	assert.Equal(t, domain.EventPresenceUpdate, env.Event)
}

func TestHub_PresenceUpdateReachesEveryone(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")
	bob := h.connect(t, "u2", "bob")

	send(h, alice, domain.EventPresenceUpdate, domain.ClientRequest{
		Status: statusOf(domain.StatusBusy),
		At:     time.Now(),
	})

	for _, sess := range []*Session{alice, bob} {
		for {
			data := awaitEvent(t, sess, domain.EventPresenceUpdate)
			var delta domain.PresenceDelta
			assert.NoError(t, json.Unmarshal(data, &delta))
			if delta.UserID == "u1" && delta.Status == domain.StatusBusy {
				break
			}
		}
	}
}

func TestHub_DirectMessageFlow(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")
	bob := h.connect(t, "u2", "bob")

	send(h, alice, domain.EventChannelCreate, domain.ClientRequest{
		ChannelKind: string(chatdomain.ChannelDirect),
		Members:     []string{"u1", "u2"},
	})

	var ch chatdomain.Channel
	data := awaitEvent(t, bob, domain.EventChannelCreated)
	assert.NoError(t, json.Unmarshal(data, &ch))
	assert.Equal(t, chatdomain.DirectChannelID("u1", "u2"), ch.ID)

	send(h, alice, domain.EventMessageSend, domain.ClientRequest{
		ChannelID: ch.ID,
		Body:      "hi",
	})

	var msg chatdomain.Message
	data = awaitEvent(t, bob, domain.EventMessageNew)
	assert.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, ch.ID, msg.ChannelID)
}

func TestHub_MessageSequenceStrictlyIncreasing(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")
	bob := h.connect(t, "u2", "bob")

	send(h, alice, domain.EventChannelCreate, domain.ClientRequest{
		ChannelKind: string(chatdomain.ChannelGroup),
		ChannelName: "room",
		Members:     []string{"u1", "u2"},
	})

	var ch chatdomain.Channel
	data := awaitEvent(t, bob, domain.EventChannelCreated)
	assert.NoError(t, json.Unmarshal(data, &ch))

	const total = 5
	for i := 0; i < total; i++ {
		send(h, alice, domain.EventMessageSend, domain.ClientRequest{ChannelID: ch.ID, Body: "m"})
	}

	var last int64
	for i := 0; i < total; i++ {
		var msg chatdomain.Message
		data := awaitEvent(t, bob, domain.EventMessageNew)
		assert.NoError(t, json.Unmarshal(data, &msg))
		assert.Greater(t, msg.Seq, last)
		last = msg.Seq
	}
}

func TestHub_QueuedNotificationsFlushBeforeTraffic(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	// u2 is offline, both notifications queue up
	h.hub.Notify("u2", notifydomain.KindMention, "first", nil)
	h.hub.Notify("u2", notifydomain.KindMessage, "second", nil)

	bob := h.connect(t, "u2", "bob")

	env := nextFrame(t, bob)
	assert.Equal(t, domain.EventNotificationNew, env.Event)
	var n notifydomain.Notification
	assert.NoError(t, json.Unmarshal(env.Data, &n))
	assert.Equal(t, "first", n.Title)

	env = nextFrame(t, bob)
	assert.Equal(t, domain.EventNotificationNew, env.Event)
	assert.NoError(t, json.Unmarshal(env.Data, &n))
	assert.Equal(t, "second", n.Title)

	// only then the regular handshake traffic
	env = nextFrame(t, bob)
	assert.Equal(t, domain.EventPresenceList, env.Event)
}

func TestHub_MentionNotifiesTarget(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")
	bob := h.connect(t, "u2", "bob")

	send(h, alice, domain.EventChannelCreate, domain.ClientRequest{
		ChannelKind: string(chatdomain.ChannelDirect),
		Members:     []string{"u1", "u2"},
	})
	var ch chatdomain.Channel
	data := awaitEvent(t, bob, domain.EventChannelCreated)
	assert.NoError(t, json.Unmarshal(data, &ch))

	send(h, alice, domain.EventMessageSend, domain.ClientRequest{
		ChannelID: ch.ID,
		Body:      "ping @bob",
	})

	var n notifydomain.Notification
	data = awaitEvent(t, bob, domain.EventNotificationNew)
	assert.NoError(t, json.Unmarshal(data, &n))
	assert.Equal(t, notifydomain.KindMention, n.Kind)
}

func TestHub_MentionOfNonMemberStaysSilent(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")
	bob := h.connect(t, "u2", "bob")
	carol := h.connect(t, "u3", "carol")

	send(h, alice, domain.EventChannelCreate, domain.ClientRequest{
		ChannelKind: string(chatdomain.ChannelDirect),
		Members:     []string{"u1", "u2"},
	})
	var ch chatdomain.Channel
	data := awaitEvent(t, bob, domain.EventChannelCreated)
	assert.NoError(t, json.Unmarshal(data, &ch))

	send(h, alice, domain.EventMessageSend, domain.ClientRequest{
		ChannelID: ch.ID,
		Body:      "hey @carol, wrong room",
	})
	awaitEvent(t, bob, domain.EventMessageNew)

	// sentinel published after the send queues behind any stray delivery
	assert.NoError(t, h.pubsub.Publish(chatrepo.UserChannel("u3"),
		domain.ServerEvent{Event: domain.EventChannelList, Data: nil}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-carol.Send:
			var env domain.Envelope
			assert.NoError(t, json.Unmarshal(payload, &env))
			if env.Event == domain.EventChannelList {
				return
			}
			assert.NotEqual(t, domain.EventNotificationNew, env.Event)
			assert.NotEqual(t, domain.EventMessageNew, env.Event)
		case <-deadline:
			t.Fatal("timed out waiting for the sentinel frame")
		}
	}
}

func TestHub_ErrorsOnlyReachOffender(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")

	send(h, alice, domain.EventMessageSend, domain.ClientRequest{
		ChannelID: "no-such-channel",
		Body:      "hi",
	})

	var errData domain.ErrorData
	data := awaitEvent(t, alice, domain.EventError)
	assert.NoError(t, json.Unmarshal(data, &errData))
	assert.Equal(t, "unknown_channel", errData.Code)
}

func TestHub_TypingExcludesSender(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")
	bob := h.connect(t, "u2", "bob")

	send(h, alice, domain.EventChannelCreate, domain.ClientRequest{
		ChannelKind: string(chatdomain.ChannelDirect),
		Members:     []string{"u1", "u2"},
	})
	var ch chatdomain.Channel
	data := awaitEvent(t, bob, domain.EventChannelCreated)
	assert.NoError(t, json.Unmarshal(data, &ch))

	send(h, alice, domain.EventTypingStart, domain.ClientRequest{ChannelID: ch.ID})

	var notice domain.TypingNotice
	data = awaitEvent(t, bob, domain.EventTypingStart)
	assert.NoError(t, json.Unmarshal(data, &notice))
	assert.Equal(t, "u1", notice.UserID)
	assert.Equal(t, ch.ID, notice.ChannelID)
}

func TestHub_LivenessSweepPrunesQuietConnections(t *testing.T) {
	h := newHubHarness(t, HubConfig{LivenessTimeout: 100 * time.Millisecond})

	alice := h.connect(t, "u1", "alice")
	// drain the handshake frames, then go quiet
	nextFrame(t, alice)
	nextFrame(t, alice)

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-alice.Send:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "quiet connection should be pruned")

	// the snapshot only carries connected users
	for _, u := range h.hub.Presence() {
		assert.NotEqual(t, "u1", u.UserID)
	}
}

func TestHub_DisconnectStampsLastSeen(t *testing.T) {
	h := newHubHarness(t, HubConfig{})

	alice := h.connect(t, "u1", "alice")
	bob := h.connect(t, "u2", "bob")

	h.hub.Unregister(alice.ID)

	for {
		data := awaitEvent(t, bob, domain.EventPresenceUpdate)
		var delta domain.PresenceDelta
		assert.NoError(t, json.Unmarshal(data, &delta))
		if delta.UserID == "u1" && delta.Status == domain.StatusOffline {
			assert.NotNil(t, delta.LastSeen)
			return
		}
	}
}
