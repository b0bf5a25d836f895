// Package watchdog contains the two background sweeps that drive
// timeouts, lobby promotion and session teardown. Each watchdog is a
// ticker loop around a Sweep method that takes the current time, so
// tests can drive sweeps without sleeping.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/denkarev/drawconquer/internal/game"
	"github.com/denkarev/drawconquer/internal/matchmaker"
	"github.com/denkarev/drawconquer/internal/protocol"
)

const sweepInterval = time.Second

// Queue evicts stale players from the matchmaking queue and promotes
// full lobbies into game sessions. It is the only writer that crosses
// the matchmaker/game boundary.
type Queue struct {
	state    *matchmaker.State
	registry *game.Registry

	lobbySize        int
	heartbeatTimeout time.Duration
	numTiles         int
	colourTimeout    time.Duration
}

// NewQueue creates the queue watchdog.
func NewQueue(state *matchmaker.State, registry *game.Registry, lobbySize int, heartbeatTimeout time.Duration, numTiles int, colourTimeout time.Duration) *Queue {
	return &Queue{
		state:            state,
		registry:         registry,
		lobbySize:        lobbySize,
		heartbeatTimeout: heartbeatTimeout,
		numTiles:         numTiles,
		colourTimeout:    colourTimeout,
	}
}

// Run sweeps once per second until ctx is cancelled.
func (w *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	slog.Info("queue watchdog started", "lobby_size", w.lobbySize, "heartbeat_timeout", w.heartbeatTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep(time.Now())
		}
	}
}

// Sweep runs one eviction phase followed by one promotion phase.
func (w *Queue) Sweep(now time.Time) {
	w.evictStale(now)
	w.promoteLobbies()
}

// evictStale removes players whose heartbeat is strictly older than
// the timeout. The expired set is collected under the matchmaker lock;
// notices, closes and removals happen outside it.
func (w *Queue) evictStale(now time.Time) {
	for _, m := range w.state.Expired(now, w.heartbeatTimeout) {
		slog.Warn("player heartbeat timed out", "player", m.ID)

		_ = protocol.WriteJSON(m.Peer, protocol.Notice{Command: protocol.CmdHeartbeatTimeout})
		m.Peer.Close()

		w.state.Remove(m.ID)
	}
}

// promoteLobbies forms sessions while the queue can fill one. The
// dequeue is atomic, so no player is ever in the queue and a session
// at the same time; the session is registered before any game_start
// goes out, so reconnecting players always find it.
func (w *Queue) promoteLobbies() {
	for w.state.Len() >= w.lobbySize {
		members := w.state.DequeueLobby(w.lobbySize)
		if len(members) < w.lobbySize {
			// Guard against a concurrent removal between the length
			// check and the dequeue.
			return
		}

		sessionID := uuid.NewString()

		playerIDs := make([]string, 0, len(members))
		names := make(map[string]string, len(members))
		for _, m := range members {
			playerIDs = append(playerIDs, m.ID)
			names[m.ID] = m.Name
		}

		w.registry.Add(game.NewSession(sessionID, playerIDs, names, w.numTiles, w.colourTimeout))

		start := protocol.GameStart{
			Command:                protocol.CmdGameStart,
			GameSessionUUID:        sessionID,
			LobbySize:              w.lobbySize,
			BoardSize:              w.numTiles,
			ColourSelectionTimeout: int(w.colourTimeout / time.Second),
		}
		for _, m := range members {
			// The matchmaker connection ends here; the client opens a
			// fresh one to the game port.
			_ = protocol.WriteJSON(m.Peer, start)
			m.Peer.Close()
		}

		slog.Info("lobby promoted", "session", sessionID, "players", playerIDs)
	}
}
