package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"batepapo/internal/chat"
	"batepapo/internal/config"
	"batepapo/internal/logger"
	"batepapo/internal/protocol"
)

func startChatServer(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		Host:         "127.0.0.1",
		Port:         0,
		SessionQueue: 64,
		MaxFrameSize: 1 << 16,
	}
	srv := chat.NewServer(cfg, logger.NewLogger("test-server"), nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(2 * time.Second) })
	return srv.Addr().String()
}

func nextFrame(t *testing.T, c *Client) *protocol.Frame {
	t.Helper()
	select {
	case f, ok := <-c.Frames():
		require.True(t, ok, "frame channel closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func login(t *testing.T, addr, name string) *Client {
	t.Helper()
	c, err := Dial(addr, name)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	f := nextFrame(t, c)
	require.Equal(t, protocol.TypeResult, f.Type)
	require.Equal(t, protocol.ResultOK, f.Payload.(protocol.Result).Code)

	f = nextFrame(t, c)
	require.Equal(t, protocol.TypeListing, f.Type)
	return c
}

func TestLoginTracksRoster(t *testing.T) {
	addr := startChatServer(t)

	alice := login(t, addr, "alice")
	require.Empty(t, alice.Users())

	bob := login(t, addr, "bob")
	require.Equal(t, []string{"alice"}, bob.Users())

	f := nextFrame(t, alice) // bob joined
	require.Equal(t, []string{"bob"}, f.Payload.(protocol.Listing).Joined)
	require.Equal(t, []string{"bob"}, alice.Users())
}

func TestSendBroadcastAndPrivate(t *testing.T) {
	addr := startChatServer(t)
	alice := login(t, addr, "alice")
	bob := login(t, addr, "bob")
	nextFrame(t, alice) // bob joined

	require.NoError(t, alice.Send(protocol.RecipientAll, "oi"))
	f := nextFrame(t, bob)
	require.Equal(t, protocol.TypeMessage, f.Type)
	require.Equal(t, protocol.Chat{Sender: "alice", Recipient: protocol.RecipientAll, Text: "oi"}, f.Payload)
	require.Equal(t, alice.origin, f.Origin, "relayed frames keep the sender's origem")

	require.NoError(t, bob.Send("alice", "pvt"))
	f = nextFrame(t, alice)
	require.Equal(t, "pvt", f.Payload.(protocol.Chat).Text)
	require.Equal(t, "alice", f.Payload.(protocol.Chat).Recipient)
}

func TestRosterShrinksOnLeave(t *testing.T) {
	addr := startChatServer(t)
	alice := login(t, addr, "alice")
	bob := login(t, addr, "bob")
	nextFrame(t, alice) // bob joined

	bob.Close()
	f := nextFrame(t, alice)
	require.Equal(t, []string{"bob"}, f.Payload.(protocol.Listing).Left)
	require.Empty(t, alice.Users())
}

func TestDuplicateLoginEndsConnection(t *testing.T) {
	addr := startChatServer(t)
	login(t, addr, "alice")

	dup, err := Dial(addr, "alice")
	require.NoError(t, err)
	t.Cleanup(dup.Close)

	f := nextFrame(t, dup)
	require.Equal(t, protocol.ResultFailed, f.Payload.(protocol.Result).Code)

	select {
	case _, ok := <-dup.Frames():
		require.False(t, ok, "channel should close after the server hangs up")
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}
