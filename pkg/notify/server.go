// Package notify is the websocket notification server. It bridges the
// in-process event bus to remote clients over one persistent connection
// each, with pre-shared-key authentication, per-client project
// filtering, and ping/pong keepalive that reaps dead connections.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hive/pkg/bus"
	"hive/pkg/protocol"
)

// Config holds server tuning knobs.
type Config struct {
	Addr         string        // listen address (default :7433)
	PresharedKey string        // required on every connection; empty disables auth
	PingInterval time.Duration // keep-alive probe interval (default 30s)
	PongWait     time.Duration // disconnect clients silent longer than this (default 60s)
	WriteWait    time.Duration // per-message write deadline (default 10s)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Addr == "" {
		out.Addr = ":7433"
	}
	if out.PingInterval == 0 {
		out.PingInterval = 30 * time.Second
	}
	if out.PongWait == 0 {
		out.PongWait = 60 * time.Second
	}
	if out.WriteWait == 0 {
		out.WriteWait = 10 * time.Second
	}
	return out
}

// KeyHeader is the dedicated pre-shared-key header, accepted alongside
// the query parameter and Authorization: Bearer forms.
const KeyHeader = "X-Hive-Key"

// Server accepts websocket clients and relays bus events to them.
type Server struct {
	cfg      Config
	bus      *bus.Bus
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool

	startedAt time.Time
	logf      func(format string, args ...any)
}

// NewServer builds a Server over eventBus.
func NewServer(cfg Config, eventBus *bus.Bus) *Server {
	return &Server{
		cfg: cfg.withDefaults(),
		bus: eventBus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:   make(map[*client]bool),
		startedAt: time.Now(),
		logf:      log.Printf,
	}
}

// Handler returns the server's HTTP routing surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	return mux
}

// Run listens on the configured address until ctx is cancelled, then
// shuts the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ConnectionCount returns the number of connected clients.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"connections":   s.ConnectionCount(),
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
	})
}

// requestKey extracts the pre-shared key from the query parameter, the
// Authorization: Bearer form, or the dedicated header, in that order.
func requestKey(r *http.Request) string {
	if k := r.URL.Query().Get("key"); k != "" {
		return k
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return r.Header.Get(KeyHeader)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	key := requestKey(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("notify: upgrade: %v", err)
		return
	}

	// Authenticate before any subscription is possible. A bad key gets
	// a policy-violation close, not an error message.
	if s.cfg.PresharedKey != "" && key != s.cfg.PresharedKey {
		deadline := time.Now().Add(s.cfg.WriteWait)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid key")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
		return
	}

	c := &client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go c.writePump()
	go c.readPump()

	c.sendInfo("connected")
}

// remove tears the client down: bus subscription, registry entry, and
// the connection itself. Safe to call from either pump.
func (s *Server) remove(c *client) {
	s.mu.Lock()
	if !s.clients[c] {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	handle := c.busHandle
	c.busHandle = ""
	s.mu.Unlock()

	if handle != "" {
		if err := s.bus.Unsubscribe(handle); err != nil {
			s.logf("notify: unsubscribe %s: %v", handle, err)
		}
	}
	c.closeOnce.Do(func() { close(c.closed) })
	_ = c.conn.Close()
}

// subscribe points the client's bus subscription at the requested
// projects, replacing any earlier subscription.
func (s *Server) subscribe(c *client, projectNumbers []int) {
	handler := func(ev protocol.StateChangeEvent) error {
		return c.enqueue(protocol.ServerMessage{Type: protocol.MsgEvent, Event: &ev})
	}

	s.mu.Lock()
	if !s.clients[c] {
		s.mu.Unlock()
		return
	}
	old := c.busHandle
	c.busHandle = s.bus.Subscribe(bus.Filter{ProjectNumbers: projectNumbers}, handler)
	s.mu.Unlock()

	if old != "" {
		if err := s.bus.Unsubscribe(old); err != nil {
			s.logf("notify: replace subscription %s: %v", old, err)
		}
	}

	if len(projectNumbers) == 0 {
		c.sendInfo("subscribed to all projects")
	} else {
		c.sendInfo(fmt.Sprintf("subscribed to %d projects", len(projectNumbers)))
	}
}

// client is one connected remote. Outbound traffic flows through send so
// the writePump is the only goroutine touching the connection for
// writes.
type client struct {
	server    *Server
	conn      *websocket.Conn
	send      chan []byte
	busHandle string

	closeOnce sync.Once
	closed    chan struct{}
}

// enqueue queues one message without blocking the bus. A client too slow
// to drain its buffer fails this delivery; the bus logs and moves on.
func (c *client) enqueue(msg protocol.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errors.New("client disconnected")
	case c.send <- data:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

func (c *client) sendInfo(text string) {
	_ = c.enqueue(protocol.ServerMessage{Type: protocol.MsgError, Message: text})
}

// readPump consumes client messages until the connection dies. The pong
// handler pushes the read deadline forward; a client that misses it is
// forcibly disconnected.
func (c *client) readPump() {
	defer c.server.remove(c)

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.server.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logf("notify: read: %v", err)
			}
			return
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendInfo("malformed message")
			continue
		}
		switch msg.Type {
		case protocol.MsgSubscribe:
			c.server.subscribe(c, msg.ProjectNumbers)
		default:
			c.sendInfo(fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

// writePump owns all writes: queued messages plus the keep-alive ping.
func (c *client) writePump() {
	ticker := time.NewTicker(c.server.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.server.remove(c)
	}()

	for {
		select {
		case <-c.closed:
			// The close frame is best effort.
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.server.cfg.WriteWait))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
