package game

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/denkarev/drawconquer/internal/protocol"
)

// Handler dispatches game commands. All commands require an existing
// session, membership in it, and a session that has not ended; the
// player's connection is re-bound before any command logic runs.
type Handler struct {
	registry *Registry
}

// NewHandler creates the game command handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// HandleMessage processes one client message. Errors are recoverable:
// the envelope goes out and the connection stays open.
func (h *Handler) HandleMessage(peer protocol.Peer, remoteAddr string, data []byte) {
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("invalid JSON", "remote", remoteAddr)
		protocol.WriteError(peer, protocol.ReasonInvalidJSON)
		return
	}

	if req.GameSessionUUID == "" {
		protocol.WriteError(peer, protocol.ReasonMissingSessionUUID)
		return
	}
	if req.UUID == "" {
		protocol.WriteError(peer, protocol.ReasonMissingPlayerUUID)
		return
	}
	if req.Command == "" {
		protocol.WriteError(peer, protocol.ReasonMissingCommand)
		return
	}

	session := h.registry.Get(req.GameSessionUUID)
	if session == nil {
		slog.Warn("game session not found", "session", req.GameSessionUUID, "player", req.UUID)
		protocol.WriteError(peer, protocol.ReasonSessionNotFound)
		return
	}
	// Only uuids listed in the session may act on it; the client's
	// exclusive knowledge of its own id is the access check.
	if !session.HasPlayer(req.UUID) {
		slog.Warn("player not in session", "session", req.GameSessionUUID, "player", req.UUID)
		protocol.WriteError(peer, protocol.ReasonPlayerNotInSession)
		return
	}

	session.BindPeer(req.UUID, peer)

	if session.Ended() {
		protocol.WriteError(peer, protocol.ReasonGameEnded)
		return
	}

	switch req.Command {
	case protocol.CmdPenColourRequest:
		h.handleColourRequest(peer, session, req)
	case protocol.CmdPenDown:
		h.handlePenDown(peer, session, req)
	case protocol.CmdPenUpTileClaimed, protocol.CmdPenUpTileNotClaimed:
		h.handlePenUp(peer, session, req)
	default:
		slog.Warn("unknown command", "session", session.ID(), "command", req.Command, "player", req.UUID)
		protocol.WriteError(peer, protocol.ReasonUnknownCommand)
	}
}

func (h *Handler) handleColourRequest(peer protocol.Peer, session *Session, req protocol.Request) {
	colour, complete, err := session.AssignColour(req.UUID, time.Now())
	if err != nil {
		protocol.WriteError(peer, protocol.ReasonNoColours)
		return
	}

	_ = protocol.WriteJSON(peer, protocol.ColourReply{
		Command: protocol.CmdPenColourResponse,
		Status:  protocol.StatusSuccess,
		Colour:  colour,
	})

	if complete {
		broadcast(session.BroadcastPeers(""), protocol.CurrentPlayers{
			Command: protocol.CmdCurrentPlayers,
			Players: session.Players(),
		})
		session.MarkStarted()
		slog.Info("game started", "session", session.ID())
	}
}

func (h *Handler) handlePenDown(peer protocol.Peer, session *Session, req protocol.Request) {
	if req.Index == nil {
		protocol.WriteError(peer, protocol.ReasonMissingTileIndex)
		return
	}

	if err := session.LockTile(*req.Index, req.UUID); err != nil {
		protocol.WriteError(peer, protocol.ReasonTileLocked)
		return
	}

	_ = protocol.WriteJSON(peer, protocol.StatusReply{Status: protocol.StatusSuccess})

	broadcast(session.BroadcastPeers(req.UUID), protocol.PenDownBroadcast{
		Command: protocol.CmdPenDownBroadcast,
		Index:   *req.Index,
		Colour:  session.Colour(req.UUID),
	})
}

func (h *Handler) handlePenUp(peer protocol.Peer, session *Session, req protocol.Request) {
	if req.Index == nil {
		protocol.WriteError(peer, protocol.ReasonMissingTileIndex)
		return
	}

	claim := req.Command == protocol.CmdPenUpTileClaimed
	won, err := session.UnlockTile(*req.Index, req.UUID, claim)
	if err != nil {
		protocol.WriteError(peer, protocol.ReasonTileNotLocked)
		return
	}

	_ = protocol.WriteJSON(peer, protocol.StatusReply{Status: protocol.StatusSuccess})

	broadcast(session.BroadcastPeers(req.UUID), protocol.PenUpBroadcast{
		Command: protocol.CmdPenUpBroadcast,
		Index:   *req.Index,
		Colour:  session.Colour(req.UUID),
		Status:  req.Command,
	})

	if won {
		winnerID, winnerName, winnerColour := session.Winner()
		broadcast(session.BroadcastPeers(""), protocol.GameWin{
			Command:      protocol.CmdGameWin,
			WinnerUUID:   winnerID,
			WinnerName:   winnerName,
			WinnerColour: winnerColour,
		})
	}
}

// broadcast marshals once and sends to every peer in the snapshot.
// Individual send failures are swallowed; the target's disconnect is
// noticed elsewhere.
func broadcast(peers []protocol.Peer, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	for _, p := range peers {
		_ = p.WriteMessage(payload)
	}
}
