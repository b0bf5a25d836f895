package matchmaker

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/denkarev/drawconquer/internal/protocol"
)

// Handler dispatches matchmaker commands. It mutates queue state under
// the state's lock and replies outside it; it never closes the peer.
type Handler struct {
	state *State
}

// NewHandler creates the matchmaker command handler.
func NewHandler(state *State) *Handler {
	return &Handler{state: state}
}

// HandleMessage processes one client message. Every failure is
// recoverable: the error envelope goes out and the connection stays
// open.
func (h *Handler) HandleMessage(peer protocol.Peer, remoteAddr string, data []byte) {
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Warn("invalid JSON", "remote", remoteAddr)
		protocol.WriteError(peer, protocol.ReasonInvalidJSON)
		return
	}

	if req.UUID == "" {
		slog.Warn("request missing player UUID", "remote", remoteAddr)
		protocol.WriteError(peer, protocol.ReasonMissingPlayerUUID)
		return
	}
	if req.Command == "" {
		slog.Warn("request missing command", "remote", remoteAddr)
		protocol.WriteError(peer, protocol.ReasonMissingCommand)
		return
	}

	switch req.Command {
	case protocol.CmdEnqueue:
		h.handleEnqueue(peer, req)
	case protocol.CmdQueueHeartbeat:
		h.handleHeartbeat(peer, req)
	case protocol.CmdRemoveFromQueue:
		h.handleRemove(peer, req)
	default:
		slog.Warn("unknown command", "command", req.Command, "player", req.UUID)
		protocol.WriteError(peer, protocol.ReasonUnknownCommand)
	}
}

func (h *Handler) handleEnqueue(peer protocol.Peer, req protocol.Request) {
	if req.Name == "" {
		slog.Warn("enqueue missing player name", "player", req.UUID)
		protocol.WriteError(peer, protocol.ReasonMissingPlayerName)
		return
	}

	queueLength, ok := h.state.Enqueue(req.UUID, req.Name, peer, time.Now())
	if !ok {
		slog.Warn("enqueue from player already in queue", "player", req.UUID)
		protocol.WriteError(peer, protocol.ReasonPlayerAlreadyInQueue)
		return
	}

	_ = protocol.WriteJSON(peer, protocol.QueueReply{
		Status:      protocol.StatusSuccess,
		QueueLength: queueLength,
	})
}

func (h *Handler) handleHeartbeat(peer protocol.Peer, req protocol.Request) {
	queueLength, ok := h.state.Heartbeat(req.UUID, time.Now())
	if !ok {
		slog.Warn("heartbeat from player not in queue", "player", req.UUID)
		protocol.WriteError(peer, protocol.ReasonPlayerNotInQueue)
		return
	}

	_ = protocol.WriteJSON(peer, protocol.QueueReply{
		Status:      protocol.StatusSuccess,
		QueueLength: queueLength,
	})
}

func (h *Handler) handleRemove(peer protocol.Peer, req protocol.Request) {
	if !h.state.IsQueued(req.UUID) {
		slog.Warn("remove request from player not in queue", "player", req.UUID)
		protocol.WriteError(peer, protocol.ReasonPlayerNotInQueue)
		return
	}

	// Reply first, then remove: the client expects the acknowledgement
	// on a connection the watchdog can no longer touch.
	_ = protocol.WriteJSON(peer, protocol.StatusReply{Status: protocol.StatusSuccess})
	h.state.Remove(req.UUID)
}
