package app

import (
	"time"

	"presence_chat_service/internal/chat/repository"
	"presence_chat_service/internal/notify/domain"
	presencedomain "presence_chat_service/internal/presence/domain"
	"presence_chat_service/pkg/logger"

	"github.com/google/uuid"
)

// Dispatcher targeted event fan-out with an offline fallback: a bounded
// FIFO per user, oldest dropped beyond the cap, flushed in original order
// on the user's next handshake. Called only from the hub loop.
type Dispatcher struct {
	pubsub   repository.PubSub
	isOnline func(userID string) bool
	queueCap int

	queues map[string][]*domain.Notification
	recent map[string]map[string]*domain.Notification
}

// NewDispatcher init notification dispatcher
func NewDispatcher(pubsub repository.PubSub, isOnline func(userID string) bool, queueCap int) *Dispatcher {
	return &Dispatcher{
		pubsub:   pubsub,
		isOnline: isOnline,
		queueCap: queueCap,
		queues:   make(map[string][]*domain.Notification),
		recent:   make(map[string]map[string]*domain.Notification),
	}
}

// Notify deliver immediately when the target has an open connection,
// otherwise queue. Queue overflow silently drops the oldest entry; that
// is deliberate lossy degradation, not an error for the sender.
func (d *Dispatcher) Notify(targetUserID string, kind domain.Kind, title string, payload map[string]interface{}) *domain.Notification {
	n := &domain.Notification{
		ID:        uuid.New().String(),
		UserID:    targetUserID,
		Kind:      kind,
		Title:     title,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	if d.isOnline != nil && d.isOnline(targetUserID) {
		d.deliver(n)
		d.remember(n)
		return n
	}

	queue := append(d.queues[targetUserID], n)
	if len(queue) > d.queueCap {
		queue = queue[len(queue)-d.queueCap:]
	}
	d.queues[targetUserID] = queue
	return n
}

// Flush drain the user's queue in original order. The hub calls this on
// handshake before any other traffic goes out on the new connection.
func (d *Dispatcher) Flush(userID string) []*domain.Notification {
	queue := d.queues[userID]
	if len(queue) == 0 {
		return nil
	}
	delete(d.queues, userID)
	for _, n := range queue {
		d.remember(n)
	}
	return queue
}

// MarkRead flip one notification to read
func (d *Dispatcher) MarkRead(userID, notificationID string) {
	if byID, ok := d.recent[userID]; ok {
		if n, ok := byID[notificationID]; ok {
			n.Read = true
		}
	}
}

// MarkAllRead flip every delivered notification of the user to read
func (d *Dispatcher) MarkAllRead(userID string) {
	for _, n := range d.recent[userID] {
		n.Read = true
	}
}

// UnreadCount delivered-but-unread notifications for the user
func (d *Dispatcher) UnreadCount(userID string) int {
	count := 0
	for _, n := range d.recent[userID] {
		if !n.Read {
			count++
		}
	}
	return count
}

// QueuedCount pending offline notifications for the user
func (d *Dispatcher) QueuedCount(userID string) int {
	return len(d.queues[userID])
}

func (d *Dispatcher) deliver(n *domain.Notification) {
	if d.pubsub == nil {
		return
	}
	frame := presencedomain.ServerEvent{Event: presencedomain.EventNotificationNew, Data: n}
	if err := d.pubsub.Publish(repository.UserChannel(n.UserID), frame); err != nil {
		logger.Log.Errorf("notification publish error:", err)
	}
}

func (d *Dispatcher) remember(n *domain.Notification) {
	byID, ok := d.recent[n.UserID]
	if !ok {
		byID = make(map[string]*domain.Notification)
		d.recent[n.UserID] = byID
	}
	byID[n.ID] = n

	// recent set is bounded the same way as the queue
	if len(byID) > d.queueCap {
		oldestID := ""
		var oldest time.Time
		for id, cand := range byID {
			if oldestID == "" || cand.CreatedAt.Before(oldest) {
				oldestID = id
				oldest = cand.CreatedAt
			}
		}
		delete(byID, oldestID)
	}
}
