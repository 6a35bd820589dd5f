package chess

type launchPrivateRequest struct {
	PlayerIsWhite bool `json:"playerIsWhite"`
}

type joinPrivateRequest struct {
	Code string `json:"code"`
}

type sessionIDMsg struct {
	Type    string `json:"type"`
	Session string `json:"session"`
}

type matchmakingStartedMsg struct {
	Type          string `json:"type"`
	Code          string `json:"code"`
	PlayerIsWhite bool   `json:"playerIsWhite"`
}

type peerConnectedMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Picture  string `json:"picture"`
}

// typeMsg is a message with nothing but a type.
type typeMsg struct {
	Type string `json:"type"`
}
