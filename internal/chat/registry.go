package chat

import (
	"errors"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var (
	// ErrNameTaken reports a login attempt with a display name that is
	// already held by a live session.
	ErrNameTaken = errors.New("display name already in use")
	// ErrSessionClosed reports a login that lost the race against its
	// own disconnect.
	ErrSessionClosed = errors.New("session closed during login")
)

// Registry is the authoritative display-name → session map. It is the
// only shared mutable structure in the server; every mutation happens
// under its lock, and it is mutated exclusively on login and disconnect.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Insert registers name atomically. On success it returns the members
// present before the insert: their names are the new user's roster and
// their sessions the join-broadcast targets, both observed under the
// same lock so concurrent logins can never see overlapping views.
func (r *Registry) Insert(name string, s *Session) ([]string, []*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[name]; ok {
		return nil, nil, ErrNameTaken
	}
	names := lo.Keys(r.sessions)
	sort.Strings(names)
	peers := lo.Values(r.sessions)
	r.sessions[name] = s
	return names, peers, nil
}

// Remove drops name if it still maps to s. Removing an absent entry, or
// one that was already replaced by a newer session, is a no-op, which
// keeps disconnect idempotent.
func (r *Registry) Remove(name string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[name]; ok && cur == s {
		delete(r.sessions, name)
		return true
	}
	return false
}

// Lookup resolves a display name to its live session.
func (r *Registry) Lookup(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// Snapshot returns the current member sessions. Fan-out iterates over
// the snapshot, not the map, so membership may change mid-broadcast
// without harm.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}

// Names returns the current display names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.sessions)
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
