package chat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"batepapo/internal/logger"
)

func TestWritePumpDrainsInOrder(t *testing.T) {
	ft := newFakeTransport()
	s := newSession(ft, 16, logger.NewLogger("test"))

	require.True(t, s.enqueue([]byte("one\n")))
	require.True(t, s.enqueue([]byte("two\n")))
	require.True(t, s.enqueue([]byte("three\n")))

	done := make(chan struct{})
	go func() {
		s.writePump(func(*Session) {})
		close(done)
	}()

	require.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return len(ft.wrote) == 3
	}, time.Second, 5*time.Millisecond)

	ft.mu.Lock()
	require.Equal(t, []byte("one\n"), ft.wrote[0])
	require.Equal(t, []byte("two\n"), ft.wrote[1])
	require.Equal(t, []byte("three\n"), ft.wrote[2])
	ft.mu.Unlock()

	s.close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writePump did not exit after close")
	}
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	s := newSession(newFakeTransport(), 4, logger.NewLogger("test"))
	s.close()
	require.False(t, s.enqueue([]byte("late\n")))
}

type failingTransport struct {
	fakeTransport
}

func (f *failingTransport) WriteFrame([]byte) error { return errors.New("broken pipe") }

func TestWritePumpReportsWriteError(t *testing.T) {
	s := newSession(&failingTransport{}, 4, logger.NewLogger("test"))

	var mu sync.Mutex
	var reported *Session
	go s.writePump(func(bad *Session) {
		mu.Lock()
		reported = bad
		mu.Unlock()
	})

	require.True(t, s.enqueue([]byte("doomed\n")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported == s
	}, time.Second, 5*time.Millisecond)
}

func TestCloseReportsFirstCallOnly(t *testing.T) {
	s := newSession(newFakeTransport(), 4, logger.NewLogger("test"))
	s.setAuthenticated("alice")

	name, wasAuth, first := s.close()
	require.True(t, first)
	require.True(t, wasAuth)
	require.Equal(t, "alice", name)

	_, _, again := s.close()
	require.False(t, again)
}
