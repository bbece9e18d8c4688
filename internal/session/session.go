// Package session runs the per-client connection context: a reader
// goroutine that frames and dispatches inbound lines, a writer
// goroutine that drains the bounded outbound queue, and an idempotent
// teardown that runs exactly once per session.
package session

import (
	"bufio"
	"log/slog"
	"net"
	"sync"

	"github.com/buddlerjoe/buddlerd/internal/protocol"
)

// CloseReason labels why a session ended; it only feeds logs and the
// teardown hook.
type CloseReason string

const (
	ReasonClientQuit   CloseReason = "client_quit"
	ReasonReadError    CloseReason = "read_error"
	ReasonWriteError   CloseReason = "write_error"
	ReasonBackpressure CloseReason = "backpressure"
	ReasonMalformed    CloseReason = "malformed_frames"
	ReasonShutdown     CloseReason = "shutdown"
)

type Config struct {
	// MaxFrameBytes is the longest accepted line, excluding the LF.
	MaxFrameBytes int
	// MalformedLimit closes the session after this many consecutive
	// bad frames.
	MalformedLimit int
	// QueueSize bounds the outbound queue; overflow closes the
	// session with ReasonBackpressure.
	QueueSize int
}

// Dispatch receives every well-formed inbound packet, already stamped
// with the session's client id. It runs on the reader goroutine.
type Dispatch func(*Session, *protocol.Packet)

// Teardown runs exactly once when the session closes, after the socket
// is shut. It must remove the client from lobby and player registries
// and unregister the session.
type Teardown func(*Session, CloseReason)

type Session struct {
	ClientID int

	conn     net.Conn
	cfg      Config
	logger   *slog.Logger
	dispatch Dispatch
	teardown Teardown

	out       chan *protocol.Packet
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(clientID int, conn net.Conn, cfg Config, logger *slog.Logger, dispatch Dispatch, teardown Teardown) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ClientID: clientID,
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		dispatch: dispatch,
		teardown: teardown,
		out:      make(chan *protocol.Packet, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
}

// Enqueue queues a packet for delivery without ever blocking. A full
// queue closes the session; enqueueing on a closed session is a no-op.
// Reports whether the packet was accepted.
func (s *Session) Enqueue(p *protocol.Packet) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- p:
		return true
	default:
		s.logger.Warn("outbound queue overflow", "client", s.ClientID)
		s.Close(ReasonBackpressure)
		return false
	}
}

// Close runs teardown at most once: both loops are cancelled, the
// socket is closed, then the teardown hook fires.
func (s *Session) Close(reason CloseReason) {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		s.logger.Info("session closed", "client", s.ClientID, "reason", string(reason))
		if s.teardown != nil {
			s.teardown(s, reason)
		}
	})
}

// Done is closed when the session has been cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until both goroutines have exited.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) readLoop() {
	defer s.wg.Done()

	// One byte of headroom past the limit plus the LF, so a frame of
	// exactly MaxFrameBytes still fits and anything longer overflows
	// into the discard path.
	br := bufio.NewReaderSize(s.conn, s.cfg.MaxFrameBytes+2)
	malformed := 0

	bump := func() bool {
		malformed++
		if malformed >= s.cfg.MalformedLimit {
			s.Close(ReasonMalformed)
			return false
		}
		return true
	}

	for {
		line, err := br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			if !s.discardLine(br) {
				return
			}
			s.logger.Debug("oversized frame discarded", "client", s.ClientID)
			if !bump() {
				return
			}
			continue
		}
		if err != nil {
			if !s.closed() {
				s.Close(ReasonReadError)
			}
			return
		}

		line = trimLine(line)
		if len(line) > s.cfg.MaxFrameBytes {
			s.logger.Debug("oversized frame discarded", "client", s.ClientID, "len", len(line))
			if !bump() {
				return
			}
			continue
		}

		pkt, err := protocol.Decode(line)
		if err != nil {
			s.logger.Debug("malformed frame", "client", s.ClientID, "error", err)
			if !bump() {
				return
			}
			continue
		}
		malformed = 0

		pkt.ClientID = s.ClientID
		s.dispatch(s, pkt)

		if s.closed() {
			return
		}
	}
}

// discardLine drains the remainder of an overlong line. Reports false
// when the connection died underneath it.
func (s *Session) discardLine(br *bufio.Reader) bool {
	for {
		_, err := br.ReadSlice('\n')
		switch err {
		case nil:
			return true
		case bufio.ErrBufferFull:
			continue
		default:
			if !s.closed() {
				s.Close(ReasonReadError)
			}
			return false
		}
	}
}

func trimLine(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

func (s *Session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case pkt := <-s.out:
			if _, err := s.conn.Write(protocol.Encode(pkt)); err != nil {
				if !s.closed() {
					s.Close(ReasonWriteError)
				}
				return
			}
		}
	}
}
