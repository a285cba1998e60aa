package app

import (
	"context"
	"encoding/json"
	"time"

	chatapp "presence_chat_service/internal/chat/app"
	chatdomain "presence_chat_service/internal/chat/domain"
	"presence_chat_service/internal/chat/repository"
	notifyapp "presence_chat_service/internal/notify/app"
	notifydomain "presence_chat_service/internal/notify/domain"
	"presence_chat_service/internal/presence/domain"
	presencerepo "presence_chat_service/internal/presence/repository"
	errprocess "presence_chat_service/pkg/err"
	"presence_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session one authenticated websocket connection. The transport layer
// drains Send; the hub is the only writer.
type Session struct {
	ID       uuid.UUID
	Identity domain.Identity
	Send     chan []byte
}

// NewSession create a session with a buffered send queue
func NewSession(identity domain.Identity) *Session {
	return &Session{
		ID:       uuid.New(),
		Identity: identity,
		Send:     make(chan []byte, 256),
	}
}

// Inbound one decoded client frame handed to the hub
type Inbound struct {
	ConnID uuid.UUID
	Env    domain.Envelope
	At     time.Time
}

// presenceFrame presence delta published across nodes; NodeID lets the
// origin hub skip its own echo, local sessions already got the delta
type presenceFrame struct {
	NodeID string             `json:"nodeId"`
	Event  domain.ServerEvent `json:"event"`
}

type remoteFrame struct {
	userID  string
	payload []byte
}

// HubConfig tunables for the event loop
type HubConfig struct {
	LivenessTimeout time.Duration
	HistoryPageSize int64
}

// Hub single-threaded event loop owning all shared mutable state:
// presence table, channels, message sequences, notification queues.
// Every mutation is handled to completion before the next event.
type Hub struct {
	store      *Store
	channelUC  *chatapp.ChannelUseCase
	messageUC  *chatapp.MessageUseCase
	dispatcher *notifyapp.Dispatcher
	pubsub     repository.PubSub
	mirror     presencerepo.PresenceRepository
	nodeID     string
	cfg        HubConfig

	sessions map[uuid.UUID]*Session
	// cancel functions for per-user pubsub subscriptions: UserID -> CancelFunc
	consumers map[string]context.CancelFunc

	register   chan *Session
	unregister chan uuid.UUID
	inbound    chan Inbound
	remote     chan remoteFrame
	ops        chan func()
	done       chan struct{}
}

// NewHub create the hub
func NewHub(
	store *Store,
	channelUC *chatapp.ChannelUseCase,
	messageUC *chatapp.MessageUseCase,
	dispatcher *notifyapp.Dispatcher,
	pubsub repository.PubSub,
	mirror presencerepo.PresenceRepository,
	cfg HubConfig,
) *Hub {
	return &Hub{
		store:      store,
		channelUC:  channelUC,
		messageUC:  messageUC,
		dispatcher: dispatcher,
		pubsub:     pubsub,
		mirror:     mirror,
		nodeID:     uuid.New().String(),
		cfg:        cfg,
		sessions:   make(map[uuid.UUID]*Session),
		consumers:  make(map[string]context.CancelFunc),
		register:   make(chan *Session),
		unregister: make(chan uuid.UUID),
		inbound:    make(chan Inbound, 256),
		remote:     make(chan remoteFrame, 1024),
		ops:        make(chan func()),
		done:       make(chan struct{}),
	}
}

// Register hand an authenticated session to the loop
func (h *Hub) Register(sess *Session) {
	h.register <- sess
}

// Unregister remove a session; safe to call more than once
func (h *Hub) Unregister(connID uuid.UUID) {
	h.unregister <- connID
}

// HandleInbound queue one decoded client frame
func (h *Hub) HandleInbound(connID uuid.UUID, env domain.Envelope) {
	h.inbound <- Inbound{ConnID: connID, Env: env, At: time.Now()}
}

// Notify dispatch a targeted notification from outside the loop
func (h *Hub) Notify(targetUserID string, kind notifydomain.Kind, title string, payload map[string]interface{}) {
	h.ops <- func() {
		h.dispatcher.Notify(targetUserID, kind, title, payload)
	}
}

// Presence snapshot of the authoritative presence table, loop-ordered
func (h *Hub) Presence() []domain.PresenceUser {
	reply := make(chan []domain.PresenceUser, 1)
	h.ops <- func() {
		reply <- h.store.Snapshot()
	}
	return <-reply
}

// Stop end the loop
func (h *Hub) Stop() {
	close(h.done)
}

// Run the event loop. Presence broadcasts leave in processing order;
// message order per channel is fixed by the sequence assigned here.
func (h *Hub) Run() {
	// one subscription carries presence deltas from the other nodes
	if h.pubsub != nil {
		presenceCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		err := h.pubsub.Subscribe(presenceCtx, repository.PresenceChannel, func(payload []byte) {
			select {
			case h.remote <- remoteFrame{payload: payload}:
			default:
				logger.Log.Warn("presence frame dropped, remote queue full")
			}
		})
		if err != nil {
			logger.Log.Errorf("presence subscribe error:", err)
		}
	}

	sweep := time.NewTicker(h.sweepInterval())
	defer sweep.Stop()

	for {
		select {
		case sess := <-h.register:
			h.handleRegister(sess)

		case connID := <-h.unregister:
			h.handleUnregister(connID, time.Now())

		case in := <-h.inbound:
			h.store.Touch(in.ConnID, in.At)
			h.handleInbound(in)

		case frame := <-h.remote:
			h.handleRemote(frame)

		case op := <-h.ops:
			op()

		case now := <-sweep.C:
			for _, connID := range h.store.StaleConnections(now, h.cfg.LivenessTimeout) {
				logger.Log.Info("pruning stale connection", zap.String("connId", connID.String()))
				h.handleUnregister(connID, now)
			}

		case <-h.done:
			return
		}
	}
}

func (h *Hub) handleRegister(sess *Session) {
	h.sessions[sess.ID] = sess
	delta := h.store.RegisterConnection(sess.ID, sess.Identity, time.Now())

	// queued notifications flush first, before any other traffic on this
	// connection, so notification order holds relative to session start
	for _, n := range h.dispatcher.Flush(sess.Identity.UserID) {
		h.sendTo(sess, domain.ServerEvent{Event: domain.EventNotificationNew, Data: n})
	}

	// full snapshot for the late joiner, deltas from here on
	h.sendTo(sess, domain.ServerEvent{Event: domain.EventPresenceList, Data: h.store.Snapshot()})

	channels, err := h.channelUC.ListForMember(context.Background(), sess.Identity.UserID)
	if err != nil {
		logger.Log.Errorf("list channels error:", err)
	} else if len(channels) > 0 {
		h.sendTo(sess, domain.ServerEvent{Event: domain.EventChannelList, Data: channels})
	}

	h.subscribeUser(sess.Identity.UserID)
	h.broadcastPresence(delta)

	logger.Log.Info("session registered",
		zap.String("userId", sess.Identity.UserID),
		zap.String("connId", sess.ID.String()),
	)
}

func (h *Hub) handleUnregister(connID uuid.UUID, at time.Time) {
	sess, ok := h.sessions[connID]
	if !ok {
		return
	}
	delete(h.sessions, connID)
	close(sess.Send)

	delta := h.store.UnregisterConnection(connID, at)

	userID := sess.Identity.UserID
	if !h.store.IsOnline(userID) {
		if cancel, ok := h.consumers[userID]; ok {
			cancel()
			delete(h.consumers, userID)
		}
	}

	h.broadcastPresence(delta)

	logger.Log.Info("session unregistered",
		zap.String("userId", userID),
		zap.String("connId", connID.String()),
	)
}

func (h *Hub) handleInbound(in Inbound) {
	sess, ok := h.sessions[in.ConnID]
	if !ok {
		return
	}

	var req domain.ClientRequest
	if len(in.Env.Data) > 0 {
		if err := json.Unmarshal(in.Env.Data, &req); err != nil {
			h.sendError(sess, errprocess.ReasonBadRequest, "malformed payload")
			return
		}
	}

	switch in.Env.Event {
	case domain.EventPresenceUpdate:
		at := req.At
		if at.IsZero() {
			at = in.At
		}
		delta := h.store.UpdateStatus(in.ConnID, req.Status, req.Activity, at)
		h.broadcastPresence(delta)

	case domain.EventChannelCreate:
		members := req.Members
		if !contains(members, sess.Identity.UserID) {
			members = append(members, sess.Identity.UserID)
		}
		_, _, err := h.channelUC.CreateChannel(
			context.Background(),
			chatdomain.ChannelKind(req.ChannelKind),
			req.ChannelName,
			sess.Identity.UserID,
			members,
		)
		if err != nil {
			h.sendError(sess, errprocess.CodeOf(err), err.Error())
		}

	case domain.EventChannelEnter:
		h.handleChannelEnter(sess, req)

	case domain.EventMessageSend:
		h.handleMessageSend(sess, req)

	case domain.EventMessageEdit:
		_, err := h.messageUC.Edit(context.Background(), req.ChannelID, req.MessageID, sess.Identity.UserID, req.Body)
		if err != nil {
			h.sendError(sess, errprocess.CodeOf(err), err.Error())
		}

	case domain.EventMessageDelete:
		_, err := h.messageUC.Delete(context.Background(), req.ChannelID, req.MessageID, sess.Identity.UserID)
		if err != nil {
			h.sendError(sess, errprocess.CodeOf(err), err.Error())
		}

	case domain.EventMessageReact:
		_, err := h.messageUC.React(context.Background(), req.ChannelID, req.MessageID, sess.Identity.UserID, req.Emoji)
		if err != nil {
			h.sendError(sess, errprocess.CodeOf(err), err.Error())
		}

	case domain.EventMessageRead:
		if err := h.messageUC.MarkRead(context.Background(), req.ChannelID, req.MessageID, sess.Identity.UserID); err != nil {
			h.sendError(sess, errprocess.CodeOf(err), err.Error())
		}

	case domain.EventTypingStart, domain.EventTypingStop:
		h.handleTyping(sess, in.Env.Event, req.ChannelID)

	case domain.EventNotificationRead:
		h.dispatcher.MarkRead(sess.Identity.UserID, req.NotificationID)

	case domain.EventNotificationReadAll:
		h.dispatcher.MarkAllRead(sess.Identity.UserID)

	default:
		h.sendError(sess, errprocess.ReasonBadRequest, "unknown event: "+string(in.Env.Event))
	}
}

func (h *Hub) handleChannelEnter(sess *Session, req domain.ClientRequest) {
	ch, err := h.channelUC.Get(context.Background(), req.ChannelID)
	if err != nil {
		h.sendError(sess, errprocess.CodeOf(err), err.Error())
		return
	}
	if ch == nil {
		h.sendError(sess, errprocess.ReasonUnknownChannel, "channel not found: "+req.ChannelID)
		return
	}
	if !ch.HasMember(sess.Identity.UserID) {
		h.sendError(sess, errprocess.ReasonNotMember, "not a channel member")
		return
	}

	msgs, err := h.messageUC.History(context.Background(), req.ChannelID, req.BeforeSeq, h.cfg.HistoryPageSize)
	if err != nil {
		h.sendError(sess, errprocess.CodeOf(err), err.Error())
		return
	}
	h.sendTo(sess, domain.ServerEvent{
		Event: domain.EventChannelHistory,
		Data:  chatdomain.ChannelHistory{ChannelID: req.ChannelID, Messages: msgs},
	})
}

func (h *Hub) handleMessageSend(sess *Session, req domain.ClientRequest) {
	msg, members, err := h.messageUC.Send(
		context.Background(),
		req.ChannelID,
		sess.Identity.UserID,
		req.Body,
		req.ReplyToID,
		req.MessageID,
	)
	if err != nil {
		h.sendError(sess, errprocess.CodeOf(err), err.Error())
		return
	}

	// mention notifications reach the target whether connected or not,
	// but only channel members; an @name matching an outsider stays silent
	memberSet := make(map[string]bool, len(members))
	for _, memberID := range members {
		memberSet[memberID] = true
	}
	mentioned := make(map[string]bool)
	for _, target := range chatapp.ScanMentions(msg.Body, h.store.Usernames()) {
		if target == sess.Identity.UserID || !memberSet[target] {
			continue
		}
		mentioned[target] = true
		h.dispatcher.Notify(target, notifydomain.KindMention, sess.Identity.Username+" mentioned you", map[string]interface{}{
			"channelId": msg.ChannelID,
			"messageId": msg.ID,
		})
	}

	// offline members get a queued message notification instead of the frame
	for _, memberID := range members {
		if memberID == sess.Identity.UserID || mentioned[memberID] {
			continue
		}
		if !h.store.IsOnline(memberID) {
			h.dispatcher.Notify(memberID, notifydomain.KindMessage, "new message from "+sess.Identity.Username, map[string]interface{}{
				"channelId": msg.ChannelID,
				"messageId": msg.ID,
			})
		}
	}
}

func (h *Hub) handleTyping(sess *Session, event domain.Event, channelID string) {
	ch, err := h.channelUC.Get(context.Background(), channelID)
	if err != nil || ch == nil || !ch.HasMember(sess.Identity.UserID) {
		return // typing is a liveness signal, silently ignored when invalid
	}

	frame := domain.ServerEvent{Event: event, Data: domain.TypingNotice{
		ChannelID: channelID,
		UserID:    sess.Identity.UserID,
		Username:  sess.Identity.Username,
	}}
	for _, memberID := range ch.Members {
		if memberID == sess.Identity.UserID {
			continue
		}
		if h.pubsub != nil {
			if err := h.pubsub.Publish(repository.UserChannel(memberID), frame); err != nil {
				logger.Log.Errorf("typing publish error:", err)
			}
		}
	}
}

// handleRemote deliver a frame from pubsub to the matching local sessions
func (h *Hub) handleRemote(frame remoteFrame) {
	if frame.userID == "" {
		// presence channel: skip our own echo
		var pf presenceFrame
		if err := json.Unmarshal(frame.payload, &pf); err != nil {
			logger.Log.Errorf("presence frame decode error:", err)
			return
		}
		if pf.NodeID == h.nodeID {
			return
		}
		payload, err := json.Marshal(pf.Event)
		if err != nil {
			return
		}
		for _, sess := range h.sessions {
			h.sendRaw(sess, payload)
		}
		return
	}

	for _, sess := range h.sessions {
		if sess.Identity.UserID == frame.userID {
			h.sendRaw(sess, frame.payload)
		}
	}
}

// subscribeUser start consuming the user's pubsub channel on first local connection
func (h *Hub) subscribeUser(userID string) {
	if h.pubsub == nil {
		return
	}
	if _, ok := h.consumers[userID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	err := h.pubsub.Subscribe(ctx, repository.UserChannel(userID), func(payload []byte) {
		select {
		case h.remote <- remoteFrame{userID: userID, payload: payload}:
		default:
			logger.Log.Warn("user frame dropped, remote queue full", zap.String("userId", userID))
		}
	})
	if err != nil {
		logger.Log.Errorf("user subscribe error:", err)
		cancel()
		return
	}
	h.consumers[userID] = cancel
}

// broadcastPresence deliver a delta to every local session and publish it
// for the other nodes
func (h *Hub) broadcastPresence(delta *domain.PresenceDelta) {
	if delta == nil {
		return
	}
	event := domain.ServerEvent{Event: domain.EventPresenceUpdate, Data: delta}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Errorf("presence delta marshal error:", err)
		return
	}
	for _, sess := range h.sessions {
		h.sendRaw(sess, payload)
	}
	if h.pubsub != nil {
		if err := h.pubsub.Publish(repository.PresenceChannel, presenceFrame{NodeID: h.nodeID, Event: event}); err != nil {
			logger.Log.Errorf("presence publish error:", err)
		}
	}
	h.mirrorDelta(delta)
}

// mirrorDelta write-behind to the Redis mirror, off the loop goroutine
func (h *Hub) mirrorDelta(delta *domain.PresenceDelta) {
	if h.mirror == nil {
		return
	}
	d := *delta
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if d.Status == domain.StatusOffline {
			if err := h.mirror.Remove(ctx, d.UserID); err != nil {
				logger.Log.Errorf("presence mirror remove error:", err)
			}
			return
		}
		user := domain.PresenceUser{
			UserID:   d.UserID,
			Username: d.Username,
			Avatar:   d.Avatar,
			Status:   d.Status,
		}
		if d.Activity != nil {
			user.Activity = *d.Activity
		}
		if err := h.mirror.Upsert(ctx, user); err != nil {
			logger.Log.Errorf("presence mirror upsert error:", err)
		}
	}()
}

func (h *Hub) sendTo(sess *Session, event domain.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Errorf("event marshal error:", err)
		return
	}
	h.sendRaw(sess, payload)
}

// sendError reason-coded rejection, delivered only to the offending session
func (h *Hub) sendError(sess *Session, reason errprocess.Reason, detail string) {
	h.sendTo(sess, domain.ServerEvent{
		Event: domain.EventError,
		Data:  domain.ErrorData{Code: string(reason), Detail: detail},
	})
}

// sendRaw never blocks the loop: a consumer that cannot keep up is dropped
func (h *Hub) sendRaw(sess *Session, payload []byte) {
	select {
	case sess.Send <- payload:
	default:
		logger.Log.Warn("slow consumer, dropping connection", zap.String("connId", sess.ID.String()))
		h.handleUnregister(sess.ID, time.Now())
	}
}

func (h *Hub) sweepInterval() time.Duration {
	interval := h.cfg.LivenessTimeout / 4
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return interval
}

func contains(list []string, val string) bool {
	for _, v := range list {
		if v == val {
			return true
		}
	}
	return false
}
