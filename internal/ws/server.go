package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"

	"github.com/denkarev/drawconquer/internal/protocol"
)

// Handler processes one decoded text message. Handlers are stateless
// transformers over shared state: they reply through the peer but
// never close it or end the receive loop.
type Handler interface {
	HandleMessage(peer protocol.Peer, remoteAddr string, data []byte)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(peer protocol.Peer, remoteAddr string, data []byte)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(peer protocol.Peer, remoteAddr string, data []byte) {
	f(peer, remoteAddr, data)
}

// Server accepts TCP connections, performs the WebSocket handshake and
// runs one receive loop per connection, dispatching every text message
// to the injected handler.
type Server struct {
	name    string
	handler Handler

	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates a server; name is only used in logs.
func NewServer(name string, handler Handler) *Server {
	return &Server{name: name, handler: handler}
}

// Addr returns the listen address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and stops the accept loop.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections from a ready listener. Split out so tests
// can pass a listener on a random port.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("server started", "server", s.name, "address", ln.Addr())

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("failed to accept connection", "server", s.name, "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	wg.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	// A panicking handler must not bring down the server.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in connection worker",
				"server", s.name, "remote", conn.RemoteAddr(), "panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ws := newConn(conn)
	addr := ws.RemoteAddr()

	if err := ws.Handshake(); err != nil {
		slog.Debug("handshake failed", "server", s.name, "remote", addr, "error", err)
		return
	}
	slog.Debug("new connection", "server", s.name, "remote", addr)

	for {
		msg, err := ws.ReadMessage()
		if err != nil {
			slog.Debug("connection closed", "server", s.name, "remote", addr)
			return
		}
		s.handler.HandleMessage(ws, addr, msg)
	}
}
