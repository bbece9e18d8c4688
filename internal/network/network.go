// Package network owns the TCP listen socket and the accept loop.
// Everything above the raw connection (framing, sessions, capacity
// decisions) belongs to the caller's connection handler.
package network

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// ErrBindFailed wraps listen-socket errors so main can map them to a
// dedicated exit code.
var ErrBindFailed = errors.New("bind failed")

type Server struct {
	port   int
	logger *slog.Logger

	ln   net.Listener
	done chan struct{}
	wg   sync.WaitGroup
}

func NewServer(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		port:   port,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start binds the listen socket and runs the accept loop in the
// background, invoking handle for every connection.
func (s *Server) Start(handle func(net.Conn)) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("%w: port %d: %v", ErrBindFailed, s.port, err)
	}
	s.ln = ln
	s.logger.Info("listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(handle)
	return nil
}

func (s *Server) acceptLoop(handle func(net.Conn)) {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		handle(conn)
	}
}

// Addr reports the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listen socket and waits for the accept loop to exit.
// Established connections are untouched.
func (s *Server) Stop() {
	close(s.done)
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
	s.logger.Info("listener stopped")
}
