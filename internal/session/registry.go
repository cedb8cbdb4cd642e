package session

import (
	"fmt"
	"sync"

	"github.com/tacgo/tacgo/internal/model"
)

// Registry is the server-wide set of live client sessions: the connected
// set (login not required to be a member), the subset that completed
// login, and the quiescence barrier used by graceful shutdown.
//
// Name uniqueness and player lookup are O(N) scans over the live set
// rather than a second by-name index, trading lookup speed for not
// having to keep two structures in sync — fine at the 64-session cap.
type Registry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sessions map[*Session]struct{}
	max      int
}

// NewRegistry creates a Registry that admits at most max concurrent
// sessions. max <= 0 means unlimited.
func NewRegistry(max int) *Registry {
	r := &Registry{
		sessions: make(map[*Session]struct{}),
		max:      max,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register admits s into the connected set. It fails with ErrCapacity if
// the registry is already at its configured maximum.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.sessions) >= r.max {
		return fmt.Errorf("register: %w", ErrCapacity)
	}
	r.sessions[s] = struct{}{}
	return nil
}

// Unregister removes s from the connected set, waking any WaitForEmpty
// waiter if the set has just become empty.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, s)
	if len(r.sessions) == 0 {
		r.cond.Broadcast()
	}
}

// Login logs s in as the named player, after checking registry-wide name
// uniqueness. The registry lock is held across both the uniqueness check
// and the per-session login, maintaining the lock-ordering discipline
// (client registry > client session) that prevents a TOCTOU race between
// two simultaneous logins under the same name.
func (r *Registry) Login(s *Session, players *model.Registry, name string) error {
	if !model.ValidUsername(name) {
		return fmt.Errorf("login: %w", ErrNameInUse)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for other := range r.sessions {
		if other == s {
			continue
		}
		if p := other.Player(); p != nil && p.Name() == name {
			return fmt.Errorf("login: %w", ErrNameInUse)
		}
	}

	player := players.Register(name)
	return s.login(player)
}

// Lookup returns the logged-in session playing as name, or nil.
func (r *Registry) Lookup(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := range r.sessions {
		if p := s.Player(); p != nil && p.Name() == name {
			return s
		}
	}
	return nil
}

// AllPlayers snapshots the players of every currently logged-in session,
// for the USERS listing.
func (r *Registry) AllPlayers() []*model.Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	players := make([]*model.Player, 0, len(r.sessions))
	for s := range r.sessions {
		if p := s.Player(); p != nil {
			players = append(players, p)
		}
	}
	return players
}

// Count returns the number of currently connected sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ShutdownAll half-closes every connected session's read side, so each
// session's receive loop observes EOF, runs its own logout/cleanup, and
// unregisters itself. ShutdownAll does not itself wait for that to
// finish; pair it with WaitForEmpty.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		s.shutdownRead()
	}
}

// WaitForEmpty blocks until the connected set is empty: the quiescence
// barrier graceful shutdown waits on before the process exits.
func (r *Registry) WaitForEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.sessions) > 0 {
		r.cond.Wait()
	}
}
