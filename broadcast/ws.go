package broadcast

import (
	"log"
	"net/http"
	"sync"
	"time"

	"enginewatch/internal/ratelimit"
	"enginewatch/metrics"

	"github.com/gorilla/websocket"
)

const (
	defaultClientBuffer = 16
	defaultPingInterval = 25 * time.Second
	writeWait           = 10 * time.Second
	maxInboundMessage   = 4096
)

// WSOptions tunes the WebSocket transport.
type WSOptions struct {
	ClientBuffer int           // queued payloads per connection before dropping
	PingInterval time.Duration // keepalive ping cadence
	Metrics      *metrics.Metrics
	OnDrop       func() // optional hook per dropped delivery (stats)
}

// WSHandler upgrades viewer connections and registers each one as a hub
// subscriber for the lifetime of the socket. Nothing is sent on connect;
// the viewer waits for the next publish.
type WSHandler struct {
	hub      *Hub
	opts     WSOptions
	upgrader websocket.Upgrader
	drops    *ratelimit.Counter
}

// NewWSHandler builds the upgrade handler for hub.
func NewWSHandler(hub *Hub, opts WSOptions) *WSHandler {
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = defaultClientBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	return &WSHandler{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Viewers are served from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		drops: ratelimit.NewCounter(10 * time.Second),
	}
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("WS: upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	sub := &wsSubscriber{
		conn:    conn,
		send:    make(chan []byte, h.opts.ClientBuffer),
		done:    make(chan struct{}),
		handler: h,
		remote:  r.RemoteAddr,
	}
	sub.handle = h.hub.Subscribe("ws:"+r.RemoteAddr, sub)
	go sub.writePump()
	sub.readPump()
}

type wsSubscriber struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	handler *WSHandler
	handle  Handle
	remote  string
}

// Deliver queues the payload without blocking; a full queue drops it.
func (s *wsSubscriber) Deliver(msg Message) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.send <- msg.Payload:
	default:
		s.handler.opts.Metrics.ObserveDrop("ws")
		if s.handler.opts.OnDrop != nil {
			s.handler.opts.OnDrop()
		}
		if total, ok := s.handler.drops.Inc(); ok {
			log.Printf("WS: queue full for %s (%d/%d buffered), dropping update (total ws drops=%d)",
				s.remote, len(s.send), cap(s.send), total)
		}
	}
}

func (s *wsSubscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.handler.hub.Unsubscribe(s.handle)
		_ = s.conn.Close()
	})
}

// readPump consumes (and discards) inbound frames so control frames are
// processed and a closed socket is noticed.
func (s *wsSubscriber) readPump() {
	defer s.close()
	wait := 2 * s.handler.opts.PingInterval
	s.conn.SetReadLimit(maxInboundMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(wait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WS: %s read error: %v", s.remote, err)
			}
			return
		}
	}
}

func (s *wsSubscriber) writePump() {
	ticker := time.NewTicker(s.handler.opts.PingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("WS: %s write failed: %v", s.remote, err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
