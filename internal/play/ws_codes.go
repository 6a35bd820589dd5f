package play

import "github.com/coder/websocket"

// Close codes in the private range sent when the handshake is refused.
const (
	CloseAuthenticationError websocket.StatusCode = 4000 // token did not resolve to a user
	CloseUnknownApplication  websocket.StatusCode = 4001 // no such module, or an illegal name
	CloseBadVersion          websocket.StatusCode = 4002 // module exists but not at that version
)
