// Package matchmaker holds the FIFO matchmaking queue and the command
// handler for the matchmaker listener.
package matchmaker

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/denkarev/drawconquer/internal/protocol"
)

// Member is one queued player as handed to the queue watchdog.
type Member struct {
	ID   string
	Name string
	Peer protocol.Peer
}

// State is the matchmaking queue. A single mutex guards the ordered id
// list and every side map; a player is either present in all of them
// or in none.
type State struct {
	mu            sync.Mutex
	order         []string
	names         map[string]string
	lastHeartbeat map[string]time.Time
	peers         map[string]protocol.Peer
}

// NewState creates an empty matchmaking queue.
func NewState() *State {
	return &State{
		names:         make(map[string]string),
		lastHeartbeat: make(map[string]time.Time),
		peers:         make(map[string]protocol.Peer),
	}
}

// Enqueue appends a player. Returns the queue length and false if the
// player was already queued (in which case nothing changes).
func (s *State) Enqueue(id, name string, peer protocol.Peer, now time.Time) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.names[id]; ok {
		return len(s.order), false
	}

	s.order = append(s.order, id)
	s.names[id] = name
	s.lastHeartbeat[id] = now
	s.peers[id] = peer

	slog.Info("player joined queue", "player", id, "name", name, "queue_length", len(s.order))
	return len(s.order), true
}

// Heartbeat refreshes a player's liveness timestamp without touching
// queue order. Returns the queue length and false if not queued.
func (s *State) Heartbeat(id string, now time.Time) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.names[id]; !ok {
		return len(s.order), false
	}
	s.lastHeartbeat[id] = now
	return len(s.order), true
}

// Remove deletes a player from the queue and every side map. Returns
// false if the player was not queued.
func (s *State) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.names[id]; !ok {
		return false
	}

	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	delete(s.names, id)
	delete(s.lastHeartbeat, id)
	delete(s.peers, id)

	slog.Info("player removed from queue", "player", id, "queue_length", len(s.order))
	return true
}

// IsQueued reports whether the player is currently in the queue.
func (s *State) IsQueued(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[id]
	return ok
}

// Len returns the current queue length.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Expired returns players whose last heartbeat is strictly older than
// the timeout. Heartbeat at exactly now-timeout is still alive.
func (s *State) Expired(now time.Time, timeout time.Duration) []Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Member
	for _, id := range s.order {
		if now.Sub(s.lastHeartbeat[id]) > timeout {
			expired = append(expired, Member{ID: id, Name: s.names[id], Peer: s.peers[id]})
		}
	}
	return expired
}

// DequeueLobby atomically removes the n oldest players. If fewer than
// n are queued nothing changes and nil is returned, so no player can
// end up half-promoted.
func (s *State) DequeueLobby(n int) []Member {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) < n {
		return nil
	}

	members := make([]Member, 0, n)
	for _, id := range s.order[:n] {
		members = append(members, Member{ID: id, Name: s.names[id], Peer: s.peers[id]})
		delete(s.names, id)
		delete(s.lastHeartbeat, id)
		delete(s.peers, id)
	}
	s.order = slices.Delete(s.order, 0, n)

	return members
}
