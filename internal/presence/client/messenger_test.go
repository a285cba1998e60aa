package client

import (
	"encoding/json"
	"testing"

	chatdomain "presence_chat_service/internal/chat/domain"
	"presence_chat_service/internal/presence/domain"

	"github.com/stretchr/testify/assert"
)

func confirmFrame(t *testing.T, msg chatdomain.Message) domain.Envelope {
	t.Helper()
	payload, err := json.Marshal(msg)
	assert.NoError(t, err)
	return domain.Envelope{Event: domain.EventMessageNew, Data: payload}
}

func TestMessageView_ServerEchoConfirmsPending(t *testing.T) {
	v := NewMessageView()

	// tentative entry placed by hand, as SendOptimistic would
	v.pending["p1"] = chatdomain.Message{ChannelID: "ch", Body: "hi", PendingID: "p1"}
	assert.Len(t, v.Pending("ch"), 1)

	v.Apply(confirmFrame(t, chatdomain.Message{
		ID: "m1", ChannelID: "ch", Seq: 1, Body: "hi", PendingID: "p1",
	}))

	assert.Empty(t, v.Pending("ch"))
	msgs := v.Messages("ch")
	assert.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestMessageView_ForeignMessageLeavesPending(t *testing.T) {
	v := NewMessageView()
	v.pending["p1"] = chatdomain.Message{ChannelID: "ch", Body: "mine", PendingID: "p1"}

	v.Apply(confirmFrame(t, chatdomain.Message{ID: "m1", ChannelID: "ch", Body: "theirs"}))

	assert.Len(t, v.Pending("ch"), 1)
	assert.Len(t, v.Messages("ch"), 1)
}

func TestMessageView_EditReplacesInPlace(t *testing.T) {
	v := NewMessageView()
	v.Apply(confirmFrame(t, chatdomain.Message{ID: "m1", ChannelID: "ch", Body: "first"}))

	edited, err := json.Marshal(chatdomain.Message{ID: "m1", ChannelID: "ch", Body: "second"})
	assert.NoError(t, err)
	v.Apply(domain.Envelope{Event: domain.EventMessageEdited, Data: edited})

	msgs := v.Messages("ch")
	assert.Len(t, msgs, 1)
	assert.Equal(t, "second", msgs[0].Body)
}

func TestMessageView_RollbackAll(t *testing.T) {
	v := NewMessageView()
	v.pending["p1"] = chatdomain.Message{ChannelID: "ch", PendingID: "p1"}
	v.pending["p2"] = chatdomain.Message{ChannelID: "ch", PendingID: "p2"}

	v.RollbackAll()
	assert.Empty(t, v.Pending("ch"))
}

func TestMessageView_ApplyHistory(t *testing.T) {
	v := NewMessageView()
	v.Apply(confirmFrame(t, chatdomain.Message{ID: "live", ChannelID: "ch", Seq: 9}))

	v.ApplyHistory(chatdomain.ChannelHistory{
		ChannelID: "ch",
		Messages: []chatdomain.Message{
			{ID: "m1", Seq: 1},
			{ID: "m2", Seq: 2},
		},
	})

	msgs := v.Messages("ch")
	assert.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
}
