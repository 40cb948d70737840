package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/gotchufam/pkg/logger"
	"github.com/charlesng35/gotchufam/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10

	defaultBufferSize = 16
)

// Message represents a JSON payload delivered to stream subscribers.
type Message struct {
	Stream  string `json:"stream"`
	Event   string `json:"event"`
	Version int64  `json:"version,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type controlMessage struct {
	Action string `json:"action"`
}

// Hub fans presence updates out to the open connections of each family stream.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*connection]struct{}
	versions      map[string]int64
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*connection]struct{}),
		versions:      make(map[string]int64),
		log:           logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the request and attaches the connection to stream until the client
// goes away. When initial is non-nil it is delivered before any broadcast.
func (h *Hub) Serve(userID, stream string, initial *Message, w http.ResponseWriter, r *http.Request) {
	stream = normalizeStream(stream)
	if stream == "" {
		http.Error(w, "stream is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := newConnection(h, conn, userID, stream)
	if initial != nil {
		msg := *initial
		msg.Stream = stream
		client.send <- msg
	}
	h.subscribe(client)

	go client.writeLoop()
	client.readLoop()
}

// BroadcastStream delivers a message to every subscriber listening on the provided stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	message.Stream = stream
	for client := range h.subscriptions[stream] {
		h.enqueue(client, message)
	}
}

// PublishSnapshot broadcasts a versioned snapshot on stream. It is dropped, returning
// false, when a snapshot with a higher version has already been published there.
func (h *Hub) PublishSnapshot(stream string, version int64, message Message) bool {
	stream = normalizeStream(stream)
	if stream == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if version < h.versions[stream] {
		return false
	}
	h.versions[stream] = version

	message.Stream = stream
	message.Version = version
	for client := range h.subscriptions[stream] {
		h.enqueue(client, message)
	}
	return true
}

// DisconnectUsers closes every connection opened by one of userIDs.
func (h *Hub) DisconnectUsers(userIDs ...string) int {
	if len(userIDs) == 0 {
		return 0
	}
	gone := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		gone[id] = struct{}{}
	}

	var victims []*connection
	h.mu.RLock()
	for _, clients := range h.subscriptions {
		for client := range clients {
			if _, ok := gone[client.userID]; ok {
				victims = append(victims, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range victims {
		client.close()
	}
	return len(victims)
}

// Subscribers returns the number of open connections on a stream.
func (h *Hub) Subscribers(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[normalizeStream(stream)])
}

// Connections returns the number of open connections across all streams.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.subscriptions {
		total += len(clients)
	}
	return total
}

func (h *Hub) subscribe(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscriptions[client.stream] == nil {
		h.subscriptions[client.stream] = make(map[*connection]struct{})
	}
	h.subscriptions[client.stream][client] = struct{}{}
	metrics.RealtimeSubscribers.Inc()
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.subscriptions[client.stream]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.subscriptions, client.stream)
		delete(h.versions, client.stream)
	}
	metrics.RealtimeSubscribers.Dec()
}

// enqueue is called with h.mu held, so slow clients are closed asynchronously.
func (h *Hub) enqueue(client *connection, message Message) {
	select {
	case client.send <- message:
	default:
		h.log.Warn("dropping slow subscriber", zap.String("user_id", client.userID), zap.String("stream", client.stream))
		go client.close()
	}
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn
	userID string
	stream string
	send   chan Message
	done   chan struct{}
	once   sync.Once
}

func newConnection(hub *Hub, conn *websocket.Conn, userID, stream string) *connection {
	return &connection{
		hub:    hub,
		socket: conn,
		userID: userID,
		stream: stream,
		send:   make(chan Message, defaultBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "ping":
			select {
			case c.send <- Message{Stream: c.stream, Event: EventPong}:
			case <-c.done:
				return
			default:
			}
		default:
			c.hub.log.Debug("unsupported control action", zap.String("action", ctrl.Action), zap.String("user_id", c.userID))
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}
