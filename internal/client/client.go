// Package client implements the protocol side of the interactive front
// end: it owns the socket, performs the login exchange, mirrors the
// roster from presence listings, and hands every other frame to the UI.
package client

import (
	"bufio"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"batepapo/internal/protocol"
)

const frameBuffer = 32

// Client is one connection to the chat server.
type Client struct {
	name   string
	origin string
	conn   net.Conn

	frames chan *protocol.Frame
	once   sync.Once

	mu    sync.Mutex
	users map[string]struct{}
}

// Dial connects, sends the Login frame, and starts the read loop. The
// server's verdict arrives as the first frame on Frames.
func Dial(addr, name string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	c := &Client{
		name:   name,
		origin: uuid.NewString(),
		conn:   conn,
		frames: make(chan *protocol.Frame, frameBuffer),
		users:  make(map[string]struct{}),
	}
	if err := c.write(protocol.TypeLogin, protocol.Login{Sender: name}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

// Frames delivers every server frame in arrival order. The channel is
// closed when the connection ends.
func (c *Client) Frames() <-chan *protocol.Frame { return c.frames }

func (c *Client) Name() string { return c.name }

// Users returns the current roster, sorted.
func (c *Client) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	users := lo.Keys(c.users)
	sort.Strings(users)
	return users
}

// Send routes text to one user, or to everyone with
// protocol.RecipientAll.
func (c *Client) Send(recipient, text string) error {
	return c.write(protocol.TypeMessage, protocol.Chat{
		Sender:    c.name,
		Recipient: recipient,
		Text:      text,
	})
}

// Close shuts the connection down; the read loop then closes Frames.
func (c *Client) Close() {
	c.once.Do(func() { _ = c.conn.Close() })
}

func (c *Client) write(t protocol.Type, payload interface{}) error {
	line, err := protocol.Encode(t, c.origin, payload)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.frames)
	defer c.Close()

	sc := bufio.NewScanner(c.conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		frame, err := protocol.Decode([]byte(line))
		if err != nil {
			// tolerate servers newer than this client
			continue
		}
		if frame.Type == protocol.TypeListing {
			c.updateRoster(frame.Payload.(protocol.Listing))
		}
		c.frames <- frame
	}
}

func (c *Client) updateRoster(lst protocol.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case lst.Registered != nil:
		c.users = make(map[string]struct{}, len(lst.Registered))
		for _, u := range lst.Registered {
			c.users[u] = struct{}{}
		}
	case lst.Joined != nil:
		for _, u := range lst.Joined {
			c.users[u] = struct{}{}
		}
	case lst.Left != nil:
		for _, u := range lst.Left {
			delete(c.users, u)
		}
	}
}
