package core

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/logger"
)

// DefaultPollInterval bounds how long Accept waits before the running flag is
// checked again.
const DefaultPollInterval = 100 * time.Millisecond

// Stats is a snapshot of the server's session counters.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Active   int64  `json:"active"`
}

// Server is the accept loop. It dispatches every accepted connection to its
// own goroutine and never waits on a session before accepting the next one.
type Server struct {
	Listener          PollListener
	ConnectionHandler ConnectionHandler
	Running           *RunningFlag
	IDs               *ClientIDs
	PollInterval      time.Duration

	sessions sync.WaitGroup
	accepted atomic.Uint64
	active   atomic.Int64
}

// Serve accepts connections until the running flag is cleared or an
// unexpected accept error occurs. The listening socket is closed on return;
// sessions already dispatched keep running.
func (s *Server) Serve() error {
	defer func() {
		if err := s.Listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Warn("Failed to close listener", "addr", s.Listener.Addr(), "error", err)
		}
	}()

	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	for s.Running.Running() {
		if err := s.Listener.SetDeadline(time.Now().Add(poll)); err != nil {
			return fmt.Errorf("failed to set accept deadline: %w", err)
		}

		conn, err := s.Listener.Accept()
		if err != nil {
			if isPollTimeout(err) {
				continue
			}
			if !s.Running.Running() {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		clientID := s.IDs.Next()
		s.accepted.Add(1)
		s.active.Add(1)
		s.sessions.Add(1)
		logger.Debug("Accepted connection", "client_id", clientID, "remote_addr", conn.RemoteAddr())
		go s.handleConnection(conn, clientID)
	}

	logger.Info("Listener stopped accepting connections", "addr", s.Listener.Addr())
	return nil
}

// Wait blocks until every dispatched session has returned.
func (s *Server) Wait() {
	s.sessions.Wait()
}

// Stats returns the current session counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Active:   s.active.Load(),
	}
}

func (s *Server) handleConnection(conn net.Conn, clientID uint64) {
	defer func() {
		s.active.Add(-1)
		s.sessions.Done()
	}()

	// Delegate the entire lifecycle to the handler
	s.ConnectionHandler.HandleConnection(conn, clientID)
}

func isPollTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
