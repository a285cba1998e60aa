package client

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"presence_chat_service/internal/presence/domain"
	errprocess "presence_chat_service/pkg/err"
	"presence_chat_service/pkg/logger"

	"github.com/gorilla/websocket"
)

// ConnConfig connection manager settings
type ConnConfig struct {
	// URL websocket endpoint, token carried in the auth query parameter
	URL string
	// BackoffMin first reconnect delay
	BackoffMin time.Duration
	// BackoffMax reconnect delay ceiling
	BackoffMax time.Duration
}

// ApplyDefaults fill zero fields
func (c *ConnConfig) ApplyDefaults() {
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
}

// Manager owns the one long-lived connection: dial, login handshake,
// automatic reconnect with bounded backoff, clean teardown. Inbound
// frames queue into a single channel and a lone dispatcher goroutine
// hands them to the handler one at a time, so consumers reduce events
// deterministically without a live transport in tests.
type Manager struct {
	cfg      ConnConfig
	identity domain.Identity
	dialer   *websocket.Dialer

	connected atomic.Bool
	inbound   chan domain.Envelope

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewManager create the connection manager; identity is fixed for the
// manager's lifetime, reconnects repeat the same handshake
func NewManager(cfg ConnConfig, identity domain.Identity) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:      cfg,
		identity: identity,
		dialer:   websocket.DefaultDialer,
		inbound:  make(chan domain.Envelope, 256),
	}
}

// Connect start the connection loop and the dispatcher. handler runs on a
// single goroutine in arrival order. Transient disconnects are absorbed by
// the reconnect loop; Connected reports them, they are never fatal.
func (m *Manager) Connect(ctx context.Context, handler func(domain.Envelope)) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errprocess.Set("connection manager already started")
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(2)
	go m.dispatch(runCtx, handler)
	go m.run(runCtx)
	return nil
}

// Connected transient false during reconnect, not a logout
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// Send marshal and write one frame; fails when not connected
func (m *Manager) Send(event domain.Event, data interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errprocess.Set("not connected")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(domain.Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Close best-effort offline signal before teardown so peers see a timely
// status change instead of waiting out the liveness timeout
func (m *Manager) Close() {
	m.mu.Lock()
	conn := m.conn
	cancel := m.cancel
	m.mu.Unlock()

	if conn != nil {
		offline := domain.StatusOffline
		data, _ := json.Marshal(domain.ClientRequest{Status: &offline, At: time.Now()})
		frame, _ := json.Marshal(domain.Envelope{Event: domain.EventPresenceUpdate, Data: data})
		conn.WriteMessage(websocket.TextMessage, frame)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	if cancel != nil {
		cancel()
	}
	// a peer that never completes the close handshake would leave the read
	// pump blocked; closing the transport interrupts it
	if conn != nil {
		conn.Close()
	}
	m.wg.Wait()
}

// run dial, handshake, pump, repeat until cancelled
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	defer close(m.inbound)

	backoff := m.cfg.BackoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := m.dialAndLogin(ctx)
		if err != nil {
			logger.Log.Errorf("dial error:", err)
			if !m.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, m.cfg.BackoffMax)
			continue
		}
		backoff = m.cfg.BackoffMin

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.connected.Store(true)

		m.readPump(ctx, conn)

		m.connected.Store(false)
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		conn.Close()
	}
}

func (m *Manager) dialAndLogin(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		return nil, err
	}

	login, err := json.Marshal(domain.ClientRequest{
		UserID:   m.identity.UserID,
		Username: m.identity.Username,
		Avatar:   m.identity.Avatar,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	frame, _ := json.Marshal(domain.Envelope{Event: domain.EventAuthLogin, Data: login})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Log.Errorf("read error:", err)
			}
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logger.Log.Errorf("envelope decode error:", err)
			continue
		}
		select {
		case m.inbound <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, handler func(domain.Envelope)) {
	defer m.wg.Done()
	for {
		select {
		case env, ok := <-m.inbound:
			if !ok {
				return
			}
			handler(env)
		case <-ctx.Done():
			// drain what already arrived, then stop
			for {
				select {
				case env, ok := <-m.inbound:
					if !ok {
						return
					}
					handler(env)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// nextBackoff double with jitter, capped
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	if q := int64(next) / 4; q > 0 {
		next -= time.Duration(rand.Int63n(q))
	}
	return next
}
