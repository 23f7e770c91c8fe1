package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"batepapo/internal/logger"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	return newSession(newFakeTransport(), 16, logger.NewLogger("test"))
}

func TestRegistryInsertRejectsDuplicate(t *testing.T) {
	reg := NewRegistry()
	first := testSession(t)
	second := testSession(t)

	_, _, err := reg.Insert("alice", first)
	require.NoError(t, err)

	_, _, err = reg.Insert("alice", second)
	require.ErrorIs(t, err, ErrNameTaken)

	// the original entry survives the rejected attempt
	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	require.Same(t, first, got)
}

func TestRegistryInsertReturnsPriorMembers(t *testing.T) {
	reg := NewRegistry()
	alice := testSession(t)
	bob := testSession(t)

	roster, peers, err := reg.Insert("alice", alice)
	require.NoError(t, err)
	require.Empty(t, roster)
	require.NotNil(t, roster)
	require.Empty(t, peers)

	roster, peers, err = reg.Insert("bob", bob)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, roster)
	require.Len(t, peers, 1)
	require.Same(t, alice, peers[0])
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	alice := testSession(t)

	_, _, err := reg.Insert("alice", alice)
	require.NoError(t, err)

	require.True(t, reg.Remove("alice", alice))
	require.False(t, reg.Remove("alice", alice))
	require.False(t, reg.Remove("ghost", alice))
	require.Zero(t, reg.Len())
}

func TestRegistryRemoveIgnoresReplacedSession(t *testing.T) {
	reg := NewRegistry()
	old := testSession(t)
	replacement := testSession(t)

	_, _, err := reg.Insert("alice", old)
	require.NoError(t, err)
	require.True(t, reg.Remove("alice", old))
	_, _, err = reg.Insert("alice", replacement)
	require.NoError(t, err)

	// a stale close of the old session must not evict the new one
	require.False(t, reg.Remove("alice", old))
	got, ok := reg.Lookup("alice")
	require.True(t, ok)
	require.Same(t, replacement, got)
}

func TestRegistryConcurrentLoginsSameName(t *testing.T) {
	reg := NewRegistry()
	const attempts = 64

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := reg.Insert("highlander", testSession(t))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrNameTaken)
			losses++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, attempts-1, losses)
	require.Equal(t, 1, reg.Len())
}

func TestRegistryConcurrentDistinctNames(t *testing.T) {
	reg := NewRegistry()
	const users = 32

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := reg.Insert(fmt.Sprintf("user-%02d", i), testSession(t))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, users, reg.Len())
	names := reg.Names()
	require.Len(t, names, users)
	require.IsIncreasing(t, names)
}
