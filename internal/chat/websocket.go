package chat

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// The WebSocket gateway bridges browser-style clients into the same
// session, handshake, and routing path as raw TCP: one JSON envelope
// per text message instead of per line.

const (
	wsWriteDeadline   = 10 * time.Second
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsReadBufferSize,
	WriteBufferSize: wsWriteBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		// the protocol has its own login gate; origins are not restricted
		return true
	},
}

type httpServer = http.Server

// ServeWS upgrades an HTTP request and drives the connection through
// the regular handshake and read loop.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(int64(s.cfg.MaxFrameSize))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Serve(&wsTransport{ws: ws})
	}()
}

func (s *Server) startGateway(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	// no read/write timeouts: chat connections stay open for hours
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.mu.Lock()
	s.ws = srv
	s.mu.Unlock()

	s.log.Infof("websocket gateway listening on %s", addr)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("websocket gateway: %v", err)
		}
	}()
	return nil
}

func (s *Server) stopGateway(timeout time.Duration) {
	s.mu.Lock()
	srv := s.ws
	s.mu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warnf("websocket gateway shutdown: %v", err)
	}
}

// wsTransport adapts a WebSocket connection to the Transport contract:
// each text message carries exactly one envelope, no newline needed.
type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) WriteFrame(line []byte) error {
	if err := t.ws.SetWriteDeadline(time.Now().Add(wsWriteDeadline)); err != nil {
		return err
	}
	return t.ws.WriteMessage(websocket.TextMessage, bytes.TrimRight(line, "\n"))
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.ws.RemoteAddr().String()
}
