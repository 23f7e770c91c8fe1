package chat

import (
	"bufio"
	"io"
	"net"
)

// Transport frames envelopes over one client connection. ReadFrame
// blocks until a whole frame arrives; WriteFrame must deliver exactly
// one delimited frame. Implementations exist for raw TCP lines and for
// WebSocket messages.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(line []byte) error
	Close() error
	RemoteAddr() string
}

type tcpTransport struct {
	conn net.Conn
	sc   *bufio.Scanner
}

// NewTCPTransport frames newline-delimited envelopes over conn. Lines
// longer than maxFrame are a read error and end the connection.
func NewTCPTransport(conn net.Conn, maxFrame int) Transport {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxFrame)
	return &tcpTransport{conn: conn, sc: sc}
}

func (t *tcpTransport) ReadFrame() ([]byte, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	// the scanner reuses its buffer between calls
	line := make([]byte, len(t.sc.Bytes()))
	copy(line, t.sc.Bytes())
	return line, nil
}

var newline = []byte{'\n'}

func (t *tcpTransport) WriteFrame(line []byte) error {
	if _, err := t.conn.Write(line); err != nil {
		return err
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		_, err := t.conn.Write(newline)
		return err
	}
	return nil
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
