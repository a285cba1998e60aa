package app

import (
	"context"
	"fmt"
	"testing"

	"presence_chat_service/internal/notify/domain"
	"presence_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func init() {
	logger.Log = logger.NewNop()
}

type mockPubSub struct {
	mock.Mock
}

func (m *mockPubSub) Publish(channel string, payload interface{}) error {
	args := m.Called(channel, payload)
	return args.Error(0)
}

func (m *mockPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	args := m.Called(channel, handler)
	return args.Error(0)
}

func online(userID string) bool  { return true }
func offline(userID string) bool { return false }

func TestDispatcher_DeliversWhenOnline(t *testing.T) {
	pubsub := new(mockPubSub)
	pubsub.On("Publish", "chat:user:u1", mock.Anything).Return(nil).Once()

	d := NewDispatcher(pubsub, online, 10)
	n := d.Notify("u1", domain.KindMention, "alice mentioned you", nil)

	assert.NotEmpty(t, n.ID)
	assert.Zero(t, d.QueuedCount("u1"))
	assert.Equal(t, 1, d.UnreadCount("u1"))
	pubsub.AssertExpectations(t)
}

func TestDispatcher_QueuesWhenOffline(t *testing.T) {
	d := NewDispatcher(nil, offline, 10)

	d.Notify("u1", domain.KindMessage, "new message", nil)
	d.Notify("u1", domain.KindMessage, "another message", nil)

	assert.Equal(t, 2, d.QueuedCount("u1"))
	assert.Zero(t, d.UnreadCount("u1"))
}

func TestDispatcher_QueueDropsOldest(t *testing.T) {
	const queueCap = 3
	d := NewDispatcher(nil, offline, queueCap)

	for i := 0; i < queueCap+1; i++ {
		d.Notify("u1", domain.KindMessage, fmt.Sprintf("n%d", i), nil)
	}

	flushed := d.Flush("u1")
	assert.Len(t, flushed, queueCap)
	// oldest dropped, the rest keep their relative order
	assert.Equal(t, "n1", flushed[0].Title)
	assert.Equal(t, "n2", flushed[1].Title)
	assert.Equal(t, "n3", flushed[2].Title)
}

func TestDispatcher_FlushDrainsInOrder(t *testing.T) {
	d := NewDispatcher(nil, offline, 10)

	d.Notify("u1", domain.KindMessage, "first", nil)
	d.Notify("u1", domain.KindMention, "second", nil)

	flushed := d.Flush("u1")
	assert.Len(t, flushed, 2)
	assert.Equal(t, "first", flushed[0].Title)
	assert.Equal(t, "second", flushed[1].Title)

	// queue is gone, flushed entries count as delivered unread
	assert.Zero(t, d.QueuedCount("u1"))
	assert.Equal(t, 2, d.UnreadCount("u1"))
	assert.Nil(t, d.Flush("u1"))
}

func TestDispatcher_MarkRead(t *testing.T) {
	d := NewDispatcher(nil, offline, 10)

	d.Notify("u1", domain.KindMessage, "first", nil)
	d.Notify("u1", domain.KindMessage, "second", nil)
	flushed := d.Flush("u1")

	d.MarkRead("u1", flushed[0].ID)
	assert.Equal(t, 1, d.UnreadCount("u1"))

	d.MarkAllRead("u1")
	assert.Zero(t, d.UnreadCount("u1"))
}
