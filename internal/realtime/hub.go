// Package realtime carries presence and notification events to browser
// connections over websockets.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/inkwell-comics/modsvc/internal/metrics"
	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/types"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 << 10
	sendBuffer     = 32
)

// ErrHubClosed is returned by Serve once Close has been called.
var ErrHubClosed = errors.New("realtime: hub closed")

// Identity is the authenticated owner of a connection.
type Identity struct {
	UserID int
	Role   types.Role
}

// Observer is told about every connection that opens or closes.
type Observer interface {
	Connect(userID int, connID string) bool
	Disconnect(userID int, connID string) bool
}

// Message is the frame written to clients.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type client struct {
	id       string
	identity Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}

	kickOnce sync.Once
	kick     chan struct{}
	reason   string
}

// evict asks the write pump to flush queued events, send a close frame and
// drop the connection.
func (c *client) evict(reason string) {
	c.kickOnce.Do(func() {
		c.reason = reason
		close(c.kick)
	})
}

// Hub tracks live connections and implements presence.Broadcaster.
type Hub struct {
	clients  *xsync.MapOf[string, *client]
	observer Observer
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: xsync.NewMapOf[string, *client](),
		logger:  logger.With("component", "realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 10,
			WriteBufferSize: 1 << 10,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Observe sets the observer notified on connect and disconnect. It must be
// called before Serve.
func (h *Hub) Observe(observer Observer) {
	h.observer = observer
}

// Notify queues an event for every connection in the audience. Connections
// whose buffer is full miss the event.
func (h *Hub) Notify(audience presence.Audience, event string, payload any) {
	data, err := json.Marshal(Message{Event: event, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode event", "event", event, "err", err)
		return
	}

	h.clients.Range(func(_ string, c *client) bool {
		if !matches(audience, c.identity) {
			return true
		}
		select {
		case c.send <- data:
			metrics.BroadcastsSent.WithLabelValues(event).Inc()
		default:
			metrics.BroadcastOverflow.WithLabelValues(event).Inc()
			h.logger.Warn("event overflow", "event", event, "conn_id", c.id, "user_id", c.identity.UserID)
		}
		return true
	})
}

func matches(audience presence.Audience, id Identity) bool {
	switch audience.Kind {
	case presence.AudienceAll:
		return true
	case presence.AudienceAdmins:
		return id.Role == types.RoleAdmin
	case presence.AudienceUser:
		return id.UserID == audience.UserID
	default:
		return false
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	return h.clients.Size()
}

// CloseUser evicts every live connection of userID and returns how many
// were found. Pending events are still written before the close frame;
// the observer sees each Disconnect once the connection has gone.
func (h *Hub) CloseUser(userID int, reason string) int {
	n := 0
	h.clients.Range(func(_ string, c *client) bool {
		if c.identity.UserID == userID {
			c.evict(reason)
			n++
		}
		return true
	})
	if n > 0 {
		h.logger.Info("closing user connections", "user_id", userID, "count", n, "reason", reason)
	}
	return n
}

// Serve upgrades the request and blocks until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, identity Identity) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return ErrHubClosed
	}
	h.conns.Add(1)
	h.mu.Unlock()
	defer h.conns.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrading websocket: %w", err)
	}

	c := &client{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		kick:     make(chan struct{}),
	}

	h.clients.Store(c.id, c)
	h.mu.Lock()
	closing := h.closed
	h.mu.Unlock()
	if closing {
		// Close may have ranged the clients before the Store.
		_ = conn.Close()
	}
	if h.observer != nil {
		h.observer.Connect(identity.UserID, c.id)
	}
	h.logger.Debug("connection opened", "conn_id", c.id, "user_id", identity.UserID)

	go h.writePump(c)
	h.readPump(c)

	close(c.done)
	h.clients.Delete(c.id)
	if h.observer != nil {
		h.observer.Disconnect(identity.UserID, c.id)
	}
	h.logger.Debug("connection closed", "conn_id", c.id, "user_id", identity.UserID)
	return nil
}

// readPump discards client frames and returns when the connection fails.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("failed to read message from client", "conn_id", c.id, "err", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("failed to write to client", "conn_id", c.id, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.logger.Debug("failed to ping client", "conn_id", c.id, "err", err)
				return
			}
		case <-c.kick:
			h.flush(c)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, c.reason), time.Now().Add(writeWait))
			return
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is already queued for c.
func (h *Hub) flush(c *client) {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("failed to write to client", "conn_id", c.id, "err", err)
				return
			}
		default:
			return
		}
	}
}

// Close refuses new connections, drops the live ones and waits until each
// has run its disconnect path.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.clients.Range(func(_ string, c *client) bool {
		_ = c.conn.Close()
		return true
	})
	h.conns.Wait()
}
