package mines

import "encoding/json"

// Inbound message bodies. The type field has already been read by the session.

type joinRoomRequest struct {
	RoomID int64 `json:"roomId"`
}

type gamemodeRequest struct {
	Gamemode string `json:"gamemode"`
}

type boardParamsRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Mines  int `json:"mines"`
}

type boardActionRequest struct {
	Tile   *int   `json:"tile"`
	Action string `json:"action"`
}

type currentTileRequest struct {
	Tile *int `json:"tile"`
}

type cannedMessageRequest struct {
	Message json.RawMessage `json:"message"`
}

// Outbound messages.

type sessionIDMsg struct {
	Type    string `json:"type"`
	Session string `json:"session"`
}

type stateChangeMsg struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type lobbyChangeMsg struct {
	Type    string `json:"type"`
	LobbyID int64  `json:"lobbyId"`
}

type joinRoomFailedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type roomUser struct {
	Session  string `json:"session"`
	Username string `json:"username"`
	Picture  string `json:"picture"`
	Colour   string `json:"colour"`
	IsHost   bool   `json:"isHost"`
}

type roomUpdateMsg struct {
	Type     string     `json:"type"`
	Users    []roomUser `json:"users"`
	MaxUsers int        `json:"maxUsers"`
}

type hostUpdateMsg struct {
	Type   string `json:"type"`
	IsHost bool   `json:"isHost"`
}

type gamemodeMsg struct {
	Type     string   `json:"type"`
	Gamemode Gamemode `json:"gamemode"`
}

type boardParamsMsg struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Mines  int    `json:"mines"`
}

type cannedMsg struct {
	Type     string          `json:"type"`
	User     string          `json:"user"`
	Username string          `json:"username"`
	Message  json.RawMessage `json:"message"`
}

type availableRoom struct {
	Friend      string `json:"friend"`
	RoomID      int64  `json:"roomId"`
	PinRequired bool   `json:"pinRequired"`
}

type availableRoomsMsg struct {
	Type  string          `json:"type"`
	Rooms []availableRoom `json:"rooms"`
}

type tileUpdateMsg struct {
	Type   string    `json:"type"`
	Tile   int       `json:"tile"`
	State  TileState `json:"state"`
	IsMine *bool     `json:"isMine,omitempty"`
	Number *int      `json:"number,omitempty"`
}

type minesRemainingMsg struct {
	Type           string `json:"type"`
	MinesRemaining int    `json:"minesRemaining"`
}

type hoverEntry struct {
	Tile   int    `json:"tile"`
	User   string `json:"user"`
	Colour string `json:"colour"`
}

type currentTilesMsg struct {
	Type  string       `json:"type"`
	Tiles []hoverEntry `json:"tiles"`
}

type currentPlayerMsg struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	// Timeout is when the turn will be skipped, in epoch milliseconds.
	Timeout int64 `json:"timeout"`
}

type endGameMsg struct {
	Type    string `json:"type"`
	Victory bool   `json:"victory"`
	User    string `json:"user,omitempty"`
	Picture string `json:"picture,omitempty"`
}
