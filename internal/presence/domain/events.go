package domain

import (
	"encoding/json"
	"time"
)

// Event websocket event name
type Event string

const (
	// EventAuthLogin websocket event auth:login
	EventAuthLogin Event = "auth:login"

	// EventPresenceUpdate websocket event presence:update (both directions)
	EventPresenceUpdate Event = "presence:update"
	// EventPresenceList websocket event presence:list, full snapshot on connect
	EventPresenceList Event = "presence:list"

	// EventChannelList websocket event channels:list, membership snapshot on connect
	EventChannelList Event = "channels:list"
	// EventChannelCreate websocket event channel:create
	EventChannelCreate Event = "channel:create"
	// EventChannelCreated websocket event channel:created
	EventChannelCreated Event = "channel:created"
	// EventChannelEnter websocket event channel:enter
	EventChannelEnter Event = "channel:enter"
	// EventChannelHistory websocket event channel:history
	EventChannelHistory Event = "channel:history"

	// EventMessageSend websocket event message:send
	EventMessageSend Event = "message:send"
	// EventMessageNew websocket event message:new
	EventMessageNew Event = "message:new"
	// EventMessageEdit websocket event message:edit
	EventMessageEdit Event = "message:edit"
	// EventMessageEdited websocket event message:edited
	EventMessageEdited Event = "message:edited"
	// EventMessageDelete websocket event message:delete
	EventMessageDelete Event = "message:delete"
	// EventMessageDeleted websocket event message:deleted
	EventMessageDeleted Event = "message:deleted"
	// EventMessageReact websocket event message:react
	EventMessageReact Event = "message:react"
	// EventMessageReacted websocket event message:reacted
	EventMessageReacted Event = "message:reacted"
	// EventMessageRead websocket event message:read
	EventMessageRead Event = "message:read"

	// EventTypingStart websocket event typing:start
	EventTypingStart Event = "typing:start"
	// EventTypingStop websocket event typing:stop
	EventTypingStop Event = "typing:stop"

	// EventNotificationNew websocket event notification:new
	EventNotificationNew Event = "notification:new"
	// EventNotificationRead websocket event notification:read
	EventNotificationRead Event = "notification:read"
	// EventNotificationReadAll websocket event notification:readAll
	EventNotificationReadAll Event = "notification:readAll"

	// EventError websocket event error, sent only to the offending connection
	EventError Event = "error"
)

// Envelope wire frame, every websocket message is one of these
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientRequest client to server payload
type ClientRequest struct {
	// auth:login
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`

	// presence:update; nil field means "leave unchanged"
	Status   *Status   `json:"status,omitempty"`
	Activity *string   `json:"activity,omitempty"`
	At       time.Time `json:"at,omitempty"`

	// channel / message operations
	ChannelKind string   `json:"channelKind,omitempty"`
	ChannelName string   `json:"channelName,omitempty"`
	Members     []string `json:"members,omitempty"`
	ChannelID   string   `json:"channelId,omitempty"`
	Body        string   `json:"body,omitempty"`
	ReplyToID   string   `json:"replyToId,omitempty"`
	MessageID   string   `json:"messageId,omitempty"`
	Emoji       string   `json:"emoji,omitempty"`
	BeforeSeq   int64    `json:"beforeSeq,omitempty"`

	// notification:read
	NotificationID string `json:"notificationId,omitempty"`
}

// ServerEvent server to client frame before marshaling
type ServerEvent struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// PresenceDelta partial presence update broadcast to every client
type PresenceDelta struct {
	UserID   string     `json:"userId"`
	Username string     `json:"username,omitempty"`
	Avatar   string     `json:"avatar,omitempty"`
	Status   Status     `json:"status,omitempty"`
	Activity *string    `json:"activity,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// TypingNotice ephemeral typing signal, never persisted
type TypingNotice struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

// ErrorData reason-coded rejection for the requesting connection
type ErrorData struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}
