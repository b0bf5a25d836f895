// Package protocol defines the JSON message envelope spoken on both
// the matchmaker and game listeners, and the closed set of commands
// and error reasons.
package protocol

import "encoding/json"

// Peer is the writable half of a client connection. The matchmaker and
// game state hold peers by player id; they never own the socket, and
// closing is always the watchdog's or the client's prerogative.
type Peer interface {
	WriteMessage(payload []byte) error
	Close()
}

// Client→server commands.
const (
	CmdEnqueue             = "enqueue"
	CmdQueueHeartbeat      = "queue_heartbeat"
	CmdRemoveFromQueue     = "remove_from_queue"
	CmdPenColourRequest    = "pen_colour_request"
	CmdPenDown             = "pen_down"
	CmdPenUpTileClaimed    = "pen_up_tile_claimed"
	CmdPenUpTileNotClaimed = "pen_up_tile_not_claimed"
)

// Server→client commands.
const (
	CmdHeartbeatTimeout  = "heartbeat_timeout"
	CmdGameStart         = "game_start"
	CmdPenColourResponse = "pen_colour_response"
	CmdCurrentPlayers    = "current_players"
	CmdPenDownBroadcast  = "pen_down_broadcast"
	CmdPenUpBroadcast    = "pen_up_broadcast"
	CmdGameWin           = "game_win"
	CmdInactivePlayer    = "inactive_player"
	CmdNotEnoughPlayers  = "not_enough_players"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error reasons surfaced in the "error" field. The strings are part of
// the wire contract.
const (
	ReasonInvalidJSON          = "Invalid JSON format"
	ReasonMissingPlayerUUID    = "Missing player UUID"
	ReasonMissingSessionUUID   = "Missing game session UUID"
	ReasonMissingCommand       = "Missing command"
	ReasonMissingPlayerName    = "Missing player name"
	ReasonMissingTileIndex     = "Missing tile index"
	ReasonUnknownCommand       = "Unknown command"
	ReasonPlayerNotInSession   = "Player not in game session"
	ReasonPlayerNotInQueue     = "Player not in queue"
	ReasonPlayerAlreadyInQueue = "Player already in queue"
	ReasonSessionNotFound      = "Game session not found"
	ReasonGameEnded            = "Game has already ended"
	ReasonTileLocked           = "Tile already locked"
	ReasonTileNotLocked        = "Tile not locked by this player"
	ReasonNoColours            = "No colours available"
)

// Request is the client→server envelope. Index is a pointer so a
// present-but-zero tile index survives decoding.
type Request struct {
	UUID            string `json:"uuid"`
	Command         string `json:"command"`
	Name            string `json:"name,omitempty"`
	GameSessionUUID string `json:"game_session_uuid,omitempty"`
	Index           *int   `json:"index,omitempty"`
}

// StatusReply is the bare success acknowledgement.
type StatusReply struct {
	Status string `json:"status"`
}

// ErrorReply carries a recoverable handler error; the connection stays open.
type ErrorReply struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// QueueReply acknowledges enqueue and queue_heartbeat.
type QueueReply struct {
	Status      string `json:"status"`
	QueueLength int    `json:"queue_length"`
}

// GameStart tells a promoted player where to reconnect.
type GameStart struct {
	Command                string `json:"command"`
	GameSessionUUID        string `json:"game_session_uuid"`
	LobbySize              int    `json:"lobby_size"`
	BoardSize              int    `json:"board_size"`
	ColourSelectionTimeout int    `json:"colour_selection_timeout"`
}

// ColourReply answers pen_colour_request.
type ColourReply struct {
	Command string `json:"command"`
	Status  string `json:"status"`
	Colour  string `json:"colour"`
}

// PlayerInfo is one entry of the current_players broadcast.
type PlayerInfo struct {
	Colour string `json:"colour"`
	Name   string `json:"name"`
}

// CurrentPlayers is broadcast once every participant holds a colour.
type CurrentPlayers struct {
	Command string                `json:"command"`
	Players map[string]PlayerInfo `json:"players"`
}

// PenDownBroadcast notifies peers that a tile was locked.
type PenDownBroadcast struct {
	Command string `json:"command"`
	Index   int    `json:"index"`
	Colour  string `json:"colour"`
}

// PenUpBroadcast notifies peers that a tile was released; Status
// carries the originating pen_up command name.
type PenUpBroadcast struct {
	Command string `json:"command"`
	Index   int    `json:"index"`
	Colour  string `json:"colour"`
	Status  string `json:"status"`
}

// GameWin is broadcast to the whole session on the winning claim.
type GameWin struct {
	Command      string `json:"command"`
	WinnerUUID   string `json:"winner_uuid"`
	WinnerName   string `json:"winner_name"`
	WinnerColour string `json:"winner_colour"`
}

// Notice is a bare unsolicited command: heartbeat_timeout,
// inactive_player, not_enough_players.
type Notice struct {
	Command string `json:"command"`
}

// WriteJSON marshals v and sends it as one text frame. Marshalling the
// closed message set cannot fail; the send can, and callers decide
// whether that matters.
func WriteJSON(p Peer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.WriteMessage(payload)
}

// WriteError sends the standard error envelope, best-effort.
func WriteError(p Peer, reason string) {
	_ = WriteJSON(p, ErrorReply{Status: StatusError, Error: reason})
}
