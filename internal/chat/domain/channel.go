package domain

import (
	"sort"
	"strings"
)

// ChannelKind definition channel kind
type ChannelKind string

const (
	// ChannelDirect 1 on 1 channel, keyed by the member pair
	ChannelDirect ChannelKind = "direct"
	// ChannelGroup group channel
	ChannelGroup ChannelKind = "group"
)

// Channel definition conversation container
type Channel struct {
	ID        string      `bson:"_id,omitempty" json:"id"`
	Kind      ChannelKind `bson:"kind" json:"kind"`
	Name      string      `bson:"name,omitempty" json:"name,omitempty"`
	Members   []string    `bson:"members" json:"members"`
	CreatedBy string      `bson:"created_by,omitempty" json:"createdBy,omitempty"`
	CreatedAt int64       `bson:"created_at" json:"createdAt"`

	// NextSeq next message sequence to assign, only mutated inside the hub turn
	NextSeq int64 `bson:"next_seq" json:"-"`
}

// HasMember check userID is a channel member
func (c *Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// DirectChannelID deterministic id for the unordered member pair, so
// requesting the same direct channel twice resolves to the same document
func DirectChannelID(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return "dm:" + strings.Join(pair, ":")
}
