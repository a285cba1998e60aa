package app

import (
	"context"
	"encoding/json"
	"time"

	"presence_chat_service/internal/presence/domain"
	errprocess "presence_chat_service/pkg/err"
	"presence_chat_service/pkg/logger"
	"presence_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// WebsocketHandler entry point for one websocket connection. Auth must
// complete before the session ever reaches the hub: an unauthenticated
// connection is invisible to presence and receives no broadcast.
type WebsocketHandler struct {
	hub       *Hub
	authGrace time.Duration
}

// NewWebsocketHandler create WebsocketHandler
func NewWebsocketHandler(hub *Hub, authGrace time.Duration) *WebsocketHandler {
	return &WebsocketHandler{hub: hub, authGrace: authGrace}
}

// HandleConnection run the connection to completion: auth handshake,
// register, read loop, unregister
func (h *WebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	tokenUser := conn.Locals(middlewares.TokenUserID)
	userID, ok := tokenUser.(string)
	if !ok || userID == "" {
		h.reject(conn, errprocess.ReasonNotAuthenticated, "missing token identity")
		conn.Close()
		return
	}
	tokenName, _ := conn.Locals(middlewares.TokenUsername).(string)

	// client close is surfaced as a read error; the handler is only for logging
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("websocket closed:", conn.RemoteAddr())
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	identity, err := h.awaitLogin(conn, userID, tokenName)
	if err != nil {
		h.reject(conn, errprocess.ReasonNotAuthenticated, err.Error())
		conn.Close()
		return
	}

	sess := NewSession(identity)

	writerDone := make(chan struct{})
	go h.writer(conn, sess, writerDone)

	h.hub.Register(sess)

	defer func() {
		h.hub.Unregister(sess.ID)
		<-writerDone
		conn.Close()
		logger.Log.Info("websocket close", zap.String("userId", identity.UserID))
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var env domain.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logger.Log.Errorf("envelope decode error:", err)
			continue
		}
		h.hub.HandleInbound(sess.ID, env)
	}
}

// awaitLogin the first frame must be auth:login within the grace window.
// UserID comes from the verified token; the frame only supplies profile.
func (h *WebsocketHandler) awaitLogin(conn *websocket.Conn, userID, tokenName string) (domain.Identity, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.authGrace)); err != nil {
		return domain.Identity{}, errprocess.Set("set read deadline: " + err.Error())
	}
	defer conn.SetReadDeadline(time.Time{})

	_, message, err := conn.ReadMessage()
	if err != nil {
		return domain.Identity{}, errprocess.Set("no login frame within grace window")
	}

	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return domain.Identity{}, errprocess.Set("malformed login frame")
	}
	if env.Event != domain.EventAuthLogin {
		return domain.Identity{}, errprocess.Set("expected auth:login, got " + string(env.Event))
	}

	var req domain.ClientRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return domain.Identity{}, errprocess.Set("malformed login payload")
		}
	}

	username := req.Username
	if username == "" {
		username = tokenName
	}
	return domain.Identity{UserID: userID, Username: username, Avatar: req.Avatar}, nil
}

// writer drains the session queue; hub closing Send ends the goroutine
func (h *WebsocketHandler) writer(conn *websocket.Conn, sess *Session, done chan struct{}) {
	defer close(done)
	for payload := range sess.Send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Log.Errorf("write message error:", err)
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *WebsocketHandler) reject(conn *websocket.Conn, reason errprocess.Reason, detail string) {
	frame := domain.ServerEvent{
		Event: domain.EventError,
		Data:  domain.ErrorData{Code: string(reason), Detail: detail},
	}
	b, _ := json.Marshal(frame)
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("write reject error:", err)
	}
}
