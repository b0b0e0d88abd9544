// Package telnet serves the sensor dashboard as text to plain telnet
// clients. Every session is a broadcast subscriber with its own renderer, so
// history and sparklines are per session exactly like a WebSocket viewer.
package telnet

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"enginewatch/broadcast"
	"enginewatch/internal/ratelimit"
	"enginewatch/metrics"
	"enginewatch/sensor"
	"enginewatch/viewer"

	ztelnet "github.com/ziutek/telnet"
)

const (
	defaultSendDeadline  = 5 * time.Second
	defaultSessionBuffer = 8
	defaultSparkWidth    = 40
)

// ServerOptions configures the telnet viewer.
type ServerOptions struct {
	Addr           string // listen address, e.g. ":7300"
	MaxConnections int
	UseZiutek      bool // wrap sessions with github.com/ziutek/telnet
	WelcomeMessage string
	SparkWidth     int
	SessionBuffer  int
	Locale         viewer.Locale
	Metrics        *metrics.Metrics
}

// Server accepts telnet sessions and subscribes each to the hub.
type Server struct {
	opts     ServerOptions
	hub      *broadcast.Hub
	listener net.Listener
	shutdown chan struct{}
	stopOnce sync.Once
	drops    *ratelimit.Counter

	clientsMutex sync.RWMutex
	clients      map[*session]struct{}
	wg           sync.WaitGroup
}

// NewServer builds a server bound to hub. Call Start to listen.
func NewServer(opts ServerOptions, hub *broadcast.Hub) *Server {
	if opts.SparkWidth <= 0 {
		opts.SparkWidth = defaultSparkWidth
	}
	if opts.SessionBuffer <= 0 {
		opts.SessionBuffer = defaultSessionBuffer
	}
	if opts.Locale.Labels == nil {
		opts.Locale = viewer.LocaleEN
	}
	return &Server{
		opts:     opts,
		hub:      hub,
		shutdown: make(chan struct{}),
		drops:    ratelimit.NewCounter(10 * time.Second),
		clients:  make(map[*session]struct{}),
	}
}

// Start opens the listener and accepts connections in the background.
func (s *Server) Start() error {
	if s.hub == nil {
		return errors.New("telnet: hub is nil")
	}
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to start telnet server: %w", err)
	}
	s.listener = listener
	log.Printf("Telnet viewer listening on %s", listener.Addr())
	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Telnet: error accepting connection: %v", err)
				continue
			}
		}
		if s.opts.MaxConnections > 0 && s.GetClientCount() >= s.opts.MaxConnections {
			_, _ = conn.Write([]byte("Server full. Try again later.\r\n"))
			conn.Close()
			log.Printf("Telnet: rejected %s: max connections reached (%d)", conn.RemoteAddr(), s.opts.MaxConnections)
			continue
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetKeepAlive(true)
			_ = tcp.SetKeepAlivePeriod(2 * time.Minute)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleClient(conn)
		}()
	}
}

// Purpose: Run one telnet session from greeting to disconnect.
// Key aspects: Registers before subscribing so Stop always sees it; the hub
// subscription is removed before the connection closes.
// Upstream: acceptConnections.
// Downstream: session.sender, lineReader.ReadLine.
func (s *Server) handleClient(conn net.Conn) {
	defer conn.Close()
	address := conn.RemoteAddr().String()

	readerConn := net.Conn(conn)
	writerConn := net.Conn(conn)
	if s.opts.UseZiutek {
		tconn, err := ztelnet.NewConn(conn)
		if err != nil {
			log.Printf("Telnet: failed to wrap connection from %s: %v", address, err)
			return
		}
		readerConn = tconn
		writerConn = tconn
	}
	sess := &session{
		server:   s,
		conn:     conn,
		address:  address,
		reader:   newLineReader(bufio.NewReader(readerConn)),
		writer:   bufio.NewWriter(writerConn),
		queue:    make(chan sensor.Snapshot, s.opts.SessionBuffer),
		done:     make(chan struct{}),
		renderer: viewer.NewRenderer(s.opts.Locale),
	}

	if msg := strings.TrimSpace(s.opts.WelcomeMessage); msg != "" {
		if err := sess.Send(msg + "\n"); err != nil {
			return
		}
	}
	if err := sess.Send(s.opts.Locale.ConnectionText(true) + ". Type HELP for commands.\n"); err != nil {
		return
	}

	s.register(sess)
	defer s.unregister(sess)
	sess.handle = s.hub.Subscribe("telnet:"+address, sess)

	go sess.sender()
	sess.commandLoop()
}

func (s *Server) register(sess *session) {
	s.clientsMutex.Lock()
	s.clients[sess] = struct{}{}
	total := len(s.clients)
	s.clientsMutex.Unlock()
	log.Printf("Telnet: registered %s (total: %d)", sess.address, total)
}

func (s *Server) unregister(sess *session) {
	s.hub.Unsubscribe(sess.handle)
	sess.stop()
	s.clientsMutex.Lock()
	delete(s.clients, sess)
	total := len(s.clients)
	s.clientsMutex.Unlock()
	log.Printf("Telnet: unregistered %s (total: %d)", sess.address, total)
}

// GetClientCount returns the number of connected sessions.
func (s *Server) GetClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

// Stop closes the listener and every session, then waits for them to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		log.Println("Stopping telnet server...")
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
		s.clientsMutex.Lock()
		for sess := range s.clients {
			sess.conn.Close()
		}
		s.clientsMutex.Unlock()
		s.wg.Wait()
	})
}
