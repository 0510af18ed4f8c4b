// Package hub pushes the latest snapshot summary to websocket clients.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"poolwatch/internal/observability"
	"poolwatch/internal/state"
)

const (
	// EventLiveData is the event name of periodic pushes.
	EventLiveData = "liveData"

	// PlaceholderMessage is pushed until the first snapshot exists.
	PlaceholderMessage = "Simulated real-time data"

	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message is the frame sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Config configures Hub.
type Config struct {
	Interval     time.Duration
	SendQueue    int
	WriteTimeout time.Duration
	CheckOrigin  func(r *http.Request) bool
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		SendQueue:    256,
		WriteTimeout: 10 * time.Second,
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the client set. Only the Run goroutine touches it.
type Hub struct {
	cfg      Config
	store    *state.Store
	log      zerolog.Logger
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	done       chan struct{}
	clients    map[*client]struct{}
	count      atomic.Int64
}

// New creates a hub reading snapshots from store.
func New(cfg Config, store *state.Store, log zerolog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.SendQueue < 1 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Run registers clients and broadcasts every interval until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()
	defer close(h.done)

	h.log.Info().Dur("interval", h.cfg.Interval).Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
			if msg, err := h.payload(); err == nil {
				h.deliver(c, msg)
			}
			h.log.Debug().Str("client", c.id).Int("clients", len(h.clients)).Msg("client registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug().Str("client", c.id).Int("clients", len(h.clients)).Msg("client unregistered")
			}

		case <-ticker.C:
			msg, err := h.payload()
			if err != nil {
				h.log.Error().Err(err).Msg("encode live data")
				continue
			}
			for c := range h.clients {
				h.deliver(c, msg)
			}
		}
	}
}

// payload encodes the latest summary, or the placeholder before the first cycle.
func (h *Hub) payload() ([]byte, error) {
	snap := h.store.Load()
	var data any = map[string]string{"message": PlaceholderMessage}
	if snap.Ready() {
		data = state.Summarize(snap)
	}
	return json.Marshal(Message{Event: EventLiveData, Data: data})
}

// deliver queues msg; a client whose queue is full is dropped.
func (h *Hub) deliver(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn().Str("client", c.id).Msg("send queue full, dropping client")
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	observability.SetWSClients(len(h.clients))
}

// ServeHTTP upgrades the connection and attaches a client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendQueue),
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("client", c.id).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump writes queued frames and pings until the queue is closed.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug().Err(err).Str("client", c.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
