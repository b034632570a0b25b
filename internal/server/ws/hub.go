// Package ws streams engine events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DIGIX666/Arena/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256

	// maxReplay bounds the backlog a reconnecting client receives. It
	// stays below sendBufferSize so the backlog never blocks the hub.
	maxReplay = 200
)

// EventPattern matches every arena event channel.
const EventPattern = "ch:arena:*"

// Frame formats a client can ask for with ?format=.
const (
	FormatJSON  = "json"
	FormatProto = "proto"
)

// client represents a single WebSocket connection.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	format string
	subs   map[string]bool
	mu     sync.RWMutex

	// backlog holds replayed frames queued right after the greeting.
	backlog [][]byte
}

// subscribeMsg is the JSON message a client sends to change its channels.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// envelope is what clients receive for each event. ID is the durable
// stream id when the event came through the bus; clients pass the last one
// back as ?since= to resume after a reconnect.
type envelope struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Channel string       `json:"channel"`
	Event   domain.Event `json:"event"`
}

// Hub fans events out to connected clients subscribed to their channel.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan domain.BusMessage
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// Config configures a Hub.
type Config struct {
	// AllowedOrigins restricts browser origins. Empty allows all.
	AllowedOrigins []string
	StartedAt      time.Time
}

// NewHub creates a hub. With a non-nil bus, Run subscribes to EventPattern
// and forwards what every process publishes, and clients may replay the
// stream; without one, events arrive through Broadcast.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	origins := cfg.AllowedOrigins
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan domain.BusMessage, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 {
					return true
				}
				for _, o := range origins {
					if o == "*" || strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
		logger:    logger.With(slog.String("component", "ws_hub")),
		startedAt: startedAt,
	}
}

// Broadcast queues an in-process event for delivery. It never blocks;
// events are dropped when the queue is full.
func (h *Hub) Broadcast(ev domain.Event) {
	h.enqueue(domain.BusMessage{Event: ev})
}

func (h *Hub) enqueue(msg domain.BusMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws: broadcast queue full, dropping event",
			slog.String("event", string(msg.Event.Kind)),
		)
	}
}

// Run starts the hub's main loop. It exits when ctx is cancelled; clients
// that connect afterwards are closed straight away.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	if h.bus != nil {
		go h.subscribe(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			c.sendStatus()
			for _, frame := range c.backlog {
				select {
				case c.send <- frame:
				default:
				}
			}
			h.logger.Info("ws: client connected",
				slog.Int("replayed", len(c.backlog)),
				slog.Int("total_clients", h.clientCount()),
			)
			c.backlog = nil

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg domain.BusMessage) {
	channel := msg.Event.Channel()
	frames := make(map[string][]byte, 2)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(channel) {
			continue
		}
		frame, ok := frames[c.format]
		if !ok {
			var err error
			frame, err = encodeFrame(c.format, msg)
			if err != nil {
				h.logger.Error("ws: encode frame failed",
					slog.String("format", c.format),
					slog.String("error", err.Error()),
				)
				continue
			}
			frames[c.format] = frame
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// encodeFrame renders msg as a JSON envelope, or for FormatProto as the same
// envelope in a protobuf Struct.
func encodeFrame(format string, msg domain.BusMessage) ([]byte, error) {
	raw, err := json.Marshal(envelope{
		Type:    "event",
		ID:      msg.StreamID,
		Channel: msg.Event.Channel(),
		Event:   msg.Event,
	})
	if err != nil {
		return nil, err
	}
	if format != FormatProto {
		return raw, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

// subscribe forwards events published on the bus by any process.
func (h *Hub) subscribe(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, EventPattern)
	if err != nil {
		h.logger.Error("ws: failed to subscribe",
			slog.String("channel", EventPattern),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed", slog.String("channel", EventPattern))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", EventPattern))
				return
			}
			h.enqueue(msg)
		}
	}
}

// HandleWS upgrades the request and registers the client. Clients start
// subscribed to every arena channel. With ?since=<stream id> and a bus, the
// events recorded after that id are sent first.
// GET /ws?format=json|proto&since=<id>
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	format := FormatJSON
	if r.URL.Query().Get("format") == FormatProto {
		format = FormatProto
	}
	backlog := h.replay(r.Context(), r.URL.Query().Get("since"), format)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		format:  format,
		subs:    map[string]bool{EventPattern: true},
		backlog: backlog,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// replay encodes the stream entries after since. Failures only cost the
// client its backlog.
func (h *Hub) replay(ctx context.Context, since, format string) [][]byte {
	if since == "" || h.bus == nil {
		return nil
	}
	msgs, err := h.bus.Replay(ctx, since, maxReplay)
	if err != nil {
		h.logger.Warn("ws: replay failed",
			slog.String("since", since),
			slog.String("error", err.Error()),
		)
		return nil
	}
	frames := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		frame, err := encodeFrame(format, msg)
		if err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription changes from the client.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// sendStatus greets the client so it can mark the connection healthy before
// any event flows. It runs on the hub loop, ahead of any event frame.
func (c *client) sendStatus() {
	uptime := max(int64(time.Since(c.hub.startedAt).Seconds()), 0)
	msg, err := json.Marshal(map[string]any{
		"type":           "status",
		"format":         c.format,
		"uptime_seconds": uptime,
		"replayed":       len(c.backlog),
		"channels":       []string{EventPattern},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed reports whether channel matches one of the client's
// subscriptions. A trailing '*' matches any suffix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump sends queued frames and periodic pings. Protobuf clients get
// binary frames, JSON clients text frames.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	kind := websocket.TextMessage
	if c.format == FormatProto {
		kind = websocket.BinaryMessage
	}
	first := true
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// The status greeting is always JSON text.
			frameKind := kind
			if first {
				frameKind = websocket.TextMessage
				first = false
			}
			if err := c.conn.WriteMessage(frameKind, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
