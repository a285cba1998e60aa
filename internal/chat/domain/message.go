package domain

import "time"

// Reaction one emoji with the users who toggled it on
type Reaction struct {
	Emoji string   `bson:"emoji" json:"emoji"`
	Users []string `bson:"users" json:"users"`
}

// Message one chat message; Seq is monotonic per channel and assigned
// inside the hub turn that appends the message
type Message struct {
	ID        string     `bson:"_id" json:"id"`
	ChannelID string     `bson:"channel_id" json:"channelId"`
	Seq       int64      `bson:"seq" json:"seq"`
	AuthorID  string     `bson:"author_id" json:"authorId"`
	Body      string     `bson:"body" json:"body"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	EditedAt  *time.Time `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	ReplyToID string     `bson:"reply_to_id,omitempty" json:"replyToId,omitempty"`
	Deleted   bool       `bson:"deleted,omitempty" json:"deleted,omitempty"`
	Reactions []Reaction `bson:"reactions,omitempty" json:"reactions,omitempty"`
	ReadBy    []string   `bson:"read_by,omitempty" json:"readBy,omitempty"`

	// PendingID echoes the client-supplied id so the sender can reconcile
	// its unconfirmed local copy with this authoritative record
	PendingID string `bson:"-" json:"pendingId,omitempty"`
}

// Before total order within a channel: (createdAt, seq), seq as tie-break
// so ordering stays total under clock skew
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// Tombstone clear the body but keep the record so later replies still resolve
func (m *Message) Tombstone() {
	m.Body = ""
	m.Reactions = nil
	m.Deleted = true
}

// ChannelHistory history page sent on channel:enter
type ChannelHistory struct {
	ChannelID string    `json:"channelId"`
	Messages  []Message `json:"messages"`
}
