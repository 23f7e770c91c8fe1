package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
	"unicode"

	"batepapo/internal/config"
	"batepapo/internal/logger"
	"batepapo/internal/protocol"
)

// Server accepts raw connections, drives each through the login
// handshake, and feeds authenticated sessions to the router for the
// rest of their lifetime. A failure on one connection never reaches the
// others.
type Server struct {
	cfg    *config.Config
	log    *logger.Logger
	reg    *Registry
	router *Router

	mu   sync.Mutex
	ln   net.Listener
	ws   *httpServer
	live map[*Session]struct{}
	wg   sync.WaitGroup
}

func NewServer(cfg *config.Config, log *logger.Logger, events *Events) *Server {
	reg := NewRegistry()
	return &Server{
		cfg:    cfg,
		log:    log,
		reg:    reg,
		router: NewRouter(reg, events, logger.NewLogger("router")),
		live:   make(map[*Session]struct{}),
	}
}

// Router exposes the server's router, mainly for transports that feed
// sessions in from elsewhere.
func (s *Server) Router() *Router { return s.router }

// Start begins listening and returns once the accept loop is running.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Infof("chat server listening on %s", ln.Addr())
	s.wg.Add(1)
	go s.acceptLoop(ln)

	if s.cfg.WSAddr != "" {
		if err := s.startGateway(s.cfg.WSAddr); err != nil {
			_ = ln.Close()
			return err
		}
	}
	return nil
}

// Addr returns the bound listen address, useful when Port was 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			// listener closed during shutdown
			return
		}
		tr := NewTCPTransport(conn, s.cfg.MaxFrameSize)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Serve(tr)
		}()
	}
}

// Serve runs one connection to completion: writer pump, handshake, then
// the authenticated read loop. The deferred disconnect makes the close
// path identical for every exit.
func (s *Server) Serve(tr Transport) {
	sess := newSession(tr, s.cfg.SessionQueue, s.log)
	s.track(sess)
	defer s.untrack(sess)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.writePump(s.router.Disconnect)
	}()
	defer s.router.Disconnect(sess)

	s.log.Debugf("connection from %s", sess.RemoteAddr())
	if !s.handshake(sess) {
		return
	}
	s.readLoop(sess)
}

// handshake drives Pending→Authenticated. The first frame must decode,
// must be a Login, and must carry a valid unused name; any other
// outcome answers Result(1, reason) and closes the transport without
// the session ever entering the registry.
func (s *Server) handshake(sess *Session) bool {
	line, err := sess.tr.ReadFrame()
	if err != nil {
		return false
	}
	frame, err := protocol.Decode(line)
	if err != nil {
		s.log.Warnf("bad first frame from %s: %v", sess.RemoteAddr(), err)
		s.refuse(sess, "Mensagem inválida.")
		return false
	}
	if frame.Type != protocol.TypeLogin {
		s.refuse(sess, "Você tentou realizar uma operação sem estar logado.")
		return false
	}
	name := frame.Payload.(protocol.Login).Sender
	if !validName(name) {
		s.refuse(sess, "Nome de usuário inválido.")
		return false
	}
	if err := s.router.Join(sess, name); err != nil {
		if errors.Is(err, ErrNameTaken) {
			s.refuse(sess, "Já há uma pessoa no chat com este nome. Tente outro.")
		}
		return false
	}
	return true
}

// refuse answers a failure Result synchronously. Before authentication
// nothing else writes to this transport, so the direct write cannot
// interleave with the pump, and it is flushed before the close.
func (s *Server) refuse(sess *Session, reason string) {
	line, err := protocol.Encode(protocol.TypeResult, "", protocol.Result{
		Code:    protocol.ResultFailed,
		Message: reason,
	})
	if err == nil {
		_ = sess.tr.WriteFrame(line)
	}
}

// readLoop forwards Message frames to the router in arrival order.
// Other recognized types are a forward-compatible no-op; malformed
// lines are discarded. A read error ends the session.
func (s *Server) readLoop(sess *Session) {
	for {
		line, err := sess.tr.ReadFrame()
		if err != nil {
			return
		}
		frame, err := protocol.Decode(line)
		if err != nil {
			s.log.Warnf("discarding frame from %q: %v", sess.Name(), err)
			continue
		}
		if frame.Type != protocol.TypeMessage {
			continue
		}
		s.router.Route(sess, frame.Payload.(protocol.Chat), frame.Raw)
	}
}

// validName applies the display-name rules: 1–32 printable runes, no
// whitespace, and not the reserved broadcast address.
func validName(name string) bool {
	if name == "" || name == protocol.RecipientAll {
		return false
	}
	runes := []rune(name)
	if len(runes) > 32 {
		return false
	}
	for _, r := range runes {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func (s *Server) track(sess *Session) {
	s.mu.Lock()
	s.live[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.live, sess)
	s.mu.Unlock()
}

func (s *Server) liveSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]*Session, 0, len(s.live))
	for sess := range s.live {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Shutdown stops accepting, closes every live session, and waits for
// all connection goroutines to finish or for the timeout to pass.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("shutting down chat server")

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.stopGateway(timeout)
	for _, sess := range s.liveSessions() {
		s.router.Disconnect(sess)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("shutdown complete")
		return nil
	case <-time.After(timeout):
		s.log.Warn("shutdown timed out with goroutines still running")
		return context.DeadlineExceeded
	}
}
