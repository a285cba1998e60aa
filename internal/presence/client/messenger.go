package client

import (
	"encoding/json"
	"sync"

	chatdomain "presence_chat_service/internal/chat/domain"
	"presence_chat_service/internal/presence/domain"

	"github.com/google/uuid"
)

// MessageView read-through cache of channel messages with two-phase local
// sends: an optimistic send shows up tagged pending until the server echo
// carrying the same pending id confirms it. A pending entry that never
// confirms is rolled back explicitly, typically on reconnect.
type MessageView struct {
	mu        sync.Mutex
	confirmed map[string][]chatdomain.Message
	pending   map[string]chatdomain.Message
}

// NewMessageView create the view
func NewMessageView() *MessageView {
	return &MessageView{
		confirmed: make(map[string][]chatdomain.Message),
		pending:   make(map[string]chatdomain.Message),
	}
}

// SendOptimistic record the tentative message and put it on the wire.
// Returns the pending id used to reconcile the server echo.
func (v *MessageView) SendOptimistic(mgr *Manager, channelID, authorID, body, replyToID string) (string, error) {
	pendingID := uuid.New().String()

	v.mu.Lock()
	v.pending[pendingID] = chatdomain.Message{
		ChannelID: channelID,
		AuthorID:  authorID,
		Body:      body,
		ReplyToID: replyToID,
		PendingID: pendingID,
	}
	v.mu.Unlock()

	err := mgr.Send(domain.EventMessageSend, domain.ClientRequest{
		ChannelID: channelID,
		Body:      body,
		ReplyToID: replyToID,
		MessageID: pendingID,
	})
	if err != nil {
		v.Rollback(pendingID)
		return "", err
	}
	return pendingID, nil
}

// Apply fold one server frame into the cache
func (v *MessageView) Apply(env domain.Envelope) {
	var msg chatdomain.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch env.Event {
	case domain.EventMessageNew:
		if msg.PendingID != "" {
			delete(v.pending, msg.PendingID)
		}
		v.confirmed[msg.ChannelID] = append(v.confirmed[msg.ChannelID], msg)

	case domain.EventMessageEdited, domain.EventMessageDeleted, domain.EventMessageReacted:
		msgs := v.confirmed[msg.ChannelID]
		for i := range msgs {
			if msgs[i].ID == msg.ID {
				msgs[i] = msg
				return
			}
		}
	}
}

// ApplyHistory replace a channel's confirmed messages with a server page
func (v *MessageView) ApplyHistory(history chatdomain.ChannelHistory) {
	v.mu.Lock()
	defer v.mu.Unlock()
	msgs := make([]chatdomain.Message, len(history.Messages))
	copy(msgs, history.Messages)
	v.confirmed[history.ChannelID] = msgs
}

// Messages confirmed messages of a channel, in server order
func (v *MessageView) Messages(channelID string) []chatdomain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	msgs := v.confirmed[channelID]
	out := make([]chatdomain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Pending unconfirmed sends of a channel
func (v *MessageView) Pending(channelID string) []chatdomain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []chatdomain.Message
	for _, msg := range v.pending {
		if msg.ChannelID == channelID {
			out = append(out, msg)
		}
	}
	return out
}

// Rollback drop one unconfirmed send, e.g. after the transport dropped
func (v *MessageView) Rollback(pendingID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.pending, pendingID)
}

// RollbackAll drop every unconfirmed send; called on reconnect, where the
// fate of in-flight sends is unknowable
func (v *MessageView) RollbackAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = make(map[string]chatdomain.Message)
}
