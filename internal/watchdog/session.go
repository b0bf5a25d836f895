package watchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/denkarev/drawconquer/internal/game"
	"github.com/denkarev/drawconquer/internal/protocol"
)

// minSessionPlayers is the floor below which an unstarted session is
// torn down.
const minSessionPlayers = 2

// Session evicts players who never picked a colour and tears down
// sessions that fall below the minimum player count. Started sessions
// are skipped entirely.
type Session struct {
	registry *game.Registry
}

// NewSession creates the session watchdog.
func NewSession(registry *game.Registry) *Session {
	return &Session{registry: registry}
}

// Run sweeps once per second until ctx is cancelled.
func (w *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	slog.Info("session watchdog started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep(time.Now())
		}
	}
}

// Sweep checks every unstarted session for inactive players, then
// tears down sessions left without enough participants.
func (w *Session) Sweep(now time.Time) {
	for _, session := range w.registry.Snapshot() {
		if session.Started() {
			continue
		}

		for _, playerID := range session.InactivePlayers(now) {
			slog.Warn("player missed colour selection", "session", session.ID(), "player", playerID)

			if peer, ok := session.Peer(playerID); ok {
				_ = protocol.WriteJSON(peer, protocol.Notice{Command: protocol.CmdInactivePlayer})
				peer.Close()
			}
			session.RemovePlayer(playerID)
		}

		if session.PlayerCount() < minSessionPlayers {
			w.teardown(session)
		}
	}
}

func (w *Session) teardown(session *game.Session) {
	slog.Info("ending game session, not enough players", "session", session.ID())

	for _, peer := range session.BroadcastPeers("") {
		_ = protocol.WriteJSON(peer, protocol.Notice{Command: protocol.CmdNotEnoughPlayers})
		peer.Close()
	}

	w.registry.Remove(session.ID())
}
