package domain

import "time"

// Kind definition notification kind
type Kind string

const (
	// KindMessage a new message in one of the user's channels
	KindMessage Kind = "message"
	// KindMention the user's @name appeared in a message body
	KindMention Kind = "mention"
	// KindCollaboration social action involving the user
	KindCollaboration Kind = "collaboration"
	// KindSystem service originated notice
	KindSystem Kind = "system"
)

// Notification targeted event, delivered live or queued while offline
type Notification struct {
	ID        string                 `bson:"_id" json:"id"`
	UserID    string                 `bson:"user_id" json:"userId"`
	Kind      Kind                   `bson:"kind" json:"kind"`
	Title     string                 `bson:"title" json:"title"`
	Payload   map[string]interface{} `bson:"payload,omitempty" json:"payload,omitempty"`
	Read      bool                   `bson:"read" json:"read"`
	CreatedAt time.Time              `bson:"created_at" json:"createdAt"`
}
