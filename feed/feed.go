// Package feed streams simulator output to websocket clients. Each
// client gets its own writer goroutine with a bounded send buffer, so a
// slow consumer is dropped instead of stalling the tick loop.
package feed

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/pocketsim/pocketsim/market"
	"github.com/pocketsim/pocketsim/sim"
)

const sendBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the wire envelope for all stream events.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn    *websocket.Conn
	send    chan Message
	symbols map[string]bool
}

func (c *client) wants(symbol string) bool {
	return len(c.symbols) == 0 || c.symbols[symbol]
}

// Server fans simulator events out to connected websocket clients.
type Server struct {
	mu      sync.Mutex
	clients map[*client]bool
	subs    []*sim.Subscription
}

func NewServer(s *sim.Simulator) *Server {
	srv := &Server{clients: make(map[*client]bool)}
	srv.subs = []*sim.Subscription{
		s.Hub().OnTick(sim.SymbolAll, func(t market.Tick) {
			srv.broadcast(t.Symbol, Message{Type: "tick", Data: t})
		}),
		s.Hub().OnSignal(sim.SymbolAll, func(sig market.Signal) {
			srv.broadcast(sig.Symbol, Message{Type: "signal", Data: sig})
		}),
		s.Hub().OnAnalysis(sim.SymbolAll, func(a market.Analysis) {
			srv.broadcast(a.Symbol, Message{Type: "analysis", Data: a})
		}),
	}
	return srv
}

// Close detaches from the simulator and disconnects every client.
func (s *Server) Close() {
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP upgrades the request and streams events. The optional
// ?symbols=EUR/USD,GBP/USD query restricts the stream; no filter means
// every symbol.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("feed: upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		c.symbols = make(map[string]bool)
		for _, sym := range strings.Split(raw, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				c.symbols[sym] = true
			}
		}
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	log.WithField("addr", conn.RemoteAddr().String()).Info("feed: client connected")

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) broadcast(symbol string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if !c.wants(symbol) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Buffer full. Drop the client rather than block the feed.
			close(c.send)
			delete(s.clients, c)
			log.WithField("addr", c.conn.RemoteAddr().String()).
				Warn("feed: dropping slow client")
		}
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		payload, err := json.Marshal(msg)
		if err != nil {
			log.WithError(err).Debug("feed: marshal failed")
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.remove(c)
			return
		}
	}
}

// readLoop discards inbound frames; its job is noticing disconnects.
func (s *Server) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.remove(c)
			return
		}
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	if s.clients[c] {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
}
