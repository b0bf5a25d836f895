// Package game holds the per-session state machine and the command
// handler for the game listener.
package game

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/denkarev/drawconquer/internal/protocol"
)

// palette is the fixed colour pool handed out in order. A session can
// never hold more players than colours.
var palette = []string{"red", "blue", "green", "yellow", "purple", "orange", "pink", "cyan"}

// ErrNoColours is returned when the palette is exhausted.
var ErrNoColours = errors.New(protocol.ReasonNoColours)

// ErrTileLocked is returned by LockTile for a tile someone holds.
var ErrTileLocked = errors.New(protocol.ReasonTileLocked)

// ErrTileNotLocked is returned by UnlockTile when the caller does not
// hold the lock.
var ErrTileNotLocked = errors.New(protocol.ReasonTileNotLocked)

// Session is one running game. Its mutex guards every field; methods
// keep their critical sections short and never write to a peer while
// holding the lock — broadcast targets are snapshotted instead.
type Session struct {
	id            string
	numTiles      int
	tilesToWin    int
	colourTimeout time.Duration

	mu                sync.Mutex
	playerIDs         []string
	names             map[string]string
	availableColours  []string
	colours           map[string]string
	coloursRequested  map[string]struct{}
	peers             map[string]protocol.Peer
	lastColourRequest map[string]time.Time

	tileOwners map[int]string
	tileLocks  map[int]string

	started bool
	ended   bool
	winner  string
}

// NewSession creates a session for the given players. tilesToWin is
// computed from the initial player count and frozen: later evictions
// do not lower the quota.
func NewSession(id string, playerIDs []string, names map[string]string, numTiles int, colourTimeout time.Duration) *Session {
	now := time.Now()
	s := &Session{
		id:                id,
		numTiles:          numTiles,
		tilesToWin:        numTiles/len(playerIDs) + 1,
		colourTimeout:     colourTimeout,
		playerIDs:         slices.Clone(playerIDs),
		names:             names,
		availableColours:  slices.Clone(palette),
		colours:           make(map[string]string),
		coloursRequested:  make(map[string]struct{}),
		peers:             make(map[string]protocol.Peer),
		lastColourRequest: make(map[string]time.Time),
		tileOwners:        make(map[int]string),
		tileLocks:         make(map[int]string),
	}
	for _, id := range playerIDs {
		s.lastColourRequest[id] = now
	}

	slog.Info("game session created", "session", id, "players", playerIDs, "tiles_to_win", s.tilesToWin)
	return s
}

// ID returns the session UUID.
func (s *Session) ID() string {
	return s.id
}

// TilesToWin returns the frozen win quota.
func (s *Session) TilesToWin() int {
	return s.tilesToWin
}

// HasPlayer reports whether the player belongs to this session.
func (s *Session) HasPlayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.playerIDs, id)
}

// PlayerCount returns the number of remaining participants.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.playerIDs)
}

// Started reports whether every participant has been assigned a colour.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Ended reports whether the session reached a terminal state.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// BindPeer re-binds the player's current connection. Clients may
// reconnect within a session, so this runs before every command.
func (s *Session) BindPeer(id string, peer protocol.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peers[id] != peer {
		s.peers[id] = peer
	}
}

// Peer returns the player's current connection, if bound.
func (s *Session) Peer(id string) (protocol.Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[id]
	return p, ok
}

// AssignColour pops the next palette colour for the player, or returns
// the already-assigned one; repeated requests consume nothing.
// complete is true when this call assigned the last missing colour.
func (s *Session) AssignColour(id string, now time.Time) (colour string, complete bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.colours[id]; ok {
		return c, false, nil
	}

	if len(s.availableColours) == 0 {
		return "", false, ErrNoColours
	}

	colour = s.availableColours[0]
	s.availableColours = s.availableColours[1:]
	s.colours[id] = colour
	s.coloursRequested[id] = struct{}{}
	s.lastColourRequest[id] = now

	slog.Info("colour assigned", "session", s.id, "player", id, "colour", colour)
	return colour, len(s.coloursRequested) == len(s.playerIDs), nil
}

// MarkStarted flips the session into the started state, taking it out
// of the session watchdog's reach.
func (s *Session) MarkStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

// Colour returns the player's assigned colour ("" if none yet).
func (s *Session) Colour(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.colours[id]
}

// Players returns the id → colour/name map for the current_players
// broadcast.
func (s *Session) Players() map[string]protocol.PlayerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make(map[string]protocol.PlayerInfo, len(s.playerIDs))
	for _, id := range s.playerIDs {
		players[id] = protocol.PlayerInfo{
			Colour: s.colours[id],
			Name:   s.names[id],
		}
	}
	return players
}

// LockTile reserves a tile for the player. A locked or owned tile
// cannot be locked again.
func (s *Session) LockTile(index int, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, locked := s.tileLocks[index]; locked {
		return ErrTileLocked
	}
	if _, owned := s.tileOwners[index]; owned {
		return ErrTileLocked
	}

	s.tileLocks[index] = id
	return nil
}

// UnlockTile releases the player's lock on a tile. With claim, the
// tile becomes owned and the win condition is checked: won is true on
// the claim that reaches the quota, at which point the session ends.
func (s *Session) UnlockTile(index int, id string, claim bool) (won bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.tileLocks[index]; !ok || holder != id {
		return false, ErrTileNotLocked
	}
	delete(s.tileLocks, index)

	if !claim {
		return false, nil
	}

	s.tileOwners[index] = id

	owned := 0
	for _, owner := range s.tileOwners {
		if owner == id {
			owned++
		}
	}
	if owned >= s.tilesToWin {
		s.ended = true
		s.winner = id
		slog.Info("game won", "session", s.id, "winner", id, "tiles", owned)
		return true, nil
	}

	return false, nil
}

// Winner returns the winning player's id, name and colour.
func (s *Session) Winner() (id, name, colour string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner, s.names[s.winner], s.colours[s.winner]
}

// BroadcastPeers snapshots the current connections, excluding at most
// one player. Sends happen outside the session lock.
func (s *Session) BroadcastPeers(exclude string) []protocol.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]protocol.Peer, 0, len(s.peers))
	for id, p := range s.peers {
		if exclude != "" && id == exclude {
			continue
		}
		peers = append(peers, p)
	}
	return peers
}

// InactivePlayers returns participants who have not requested a colour
// within the colour-selection window. Started sessions have none.
func (s *Session) InactivePlayers(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	var inactive []string
	for _, id := range s.playerIDs {
		if _, ok := s.coloursRequested[id]; ok {
			continue
		}
		if now.Sub(s.lastColourRequest[id]) > s.colourTimeout {
			inactive = append(inactive, id)
		}
	}
	return inactive
}

// RemovePlayer evicts a player: every map entry goes, and tiles the
// player had locked are released. Owned tiles stay owned and the win
// quota is not recomputed.
func (s *Session) RemovePlayer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playerIDs = slices.DeleteFunc(s.playerIDs, func(v string) bool { return v == id })
	delete(s.peers, id)
	delete(s.colours, id)
	delete(s.coloursRequested, id)
	delete(s.lastColourRequest, id)

	for tile, holder := range s.tileLocks {
		if holder == id {
			delete(s.tileLocks, tile)
		}
	}

	slog.Info("player removed from session", "session", s.id, "player", id, "remaining", len(s.playerIDs))
}
