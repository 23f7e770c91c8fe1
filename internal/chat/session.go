package chat

import (
	"sync"

	"github.com/google/uuid"

	"batepapo/internal/logger"
)

// State tracks a session through its lifetime. The only transitions are
// Pending→Authenticated (successful login) and anything→Closed.
type State int

const (
	StatePending State = iota
	StateAuthenticated
	StateClosed
)

// Session is the server-side state for one connected client. It owns
// its transport and a buffered outbound queue drained by a dedicated
// writer goroutine, so a slow peer never stalls whoever is fanning out.
type Session struct {
	id  uuid.UUID
	tr  Transport
	log *logger.Logger

	out  chan []byte
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	name  string
	state State
}

func newSession(tr Transport, queue int, log *logger.Logger) *Session {
	return &Session{
		id:   uuid.New(),
		tr:   tr,
		log:  log,
		out:  make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) RemoteAddr() string { return s.tr.RemoteAddr() }

// setAuthenticated runs the Pending→Authenticated transition. It fails
// if the session was already closed, so a disconnect racing the login
// handshake cannot resurrect it.
func (s *Session) setAuthenticated(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return false
	}
	s.name = name
	s.state = StateAuthenticated
	return true
}

// close runs the terminal transition exactly once and reports whether
// the session was authenticated when it happened, so the caller knows
// whether a leave notification is owed.
func (s *Session) close() (name string, wasAuthenticated bool, first bool) {
	s.once.Do(func() {
		s.mu.Lock()
		name = s.name
		wasAuthenticated = s.state == StateAuthenticated
		s.state = StateClosed
		s.mu.Unlock()

		first = true
		close(s.done)
		if err := s.tr.Close(); err != nil {
			s.log.Debugf("closing transport for %s: %v", s.RemoteAddr(), err)
		}
	})
	return name, wasAuthenticated, first
}

// enqueue hands one framed line to the session's writer without ever
// blocking. A full queue or a closed session reports false; the caller
// decides what happens to the laggard.
func (s *Session) enqueue(line []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- line:
		return true
	default:
		return false
	}
}

// writePump drains the outbound queue onto the transport. It exits when
// the session closes, flushing whatever was already queued, or on the
// first write error, reported through onError.
func (s *Session) writePump(onError func(*Session)) {
	for {
		select {
		case line := <-s.out:
			if err := s.tr.WriteFrame(line); err != nil {
				onError(s)
				return
			}
		case <-s.done:
			for {
				select {
				case line := <-s.out:
					if err := s.tr.WriteFrame(line); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
