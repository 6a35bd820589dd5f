package play

import "encoding/json"

type handshakeRequest struct {
	Token       string `json:"token"`
	Application string `json:"application"`
	Version     string `json:"version"`
}

type handshakeReply struct {
	Status    string `json:"status"`
	Upgrade   string `json:"upgrade"`
	PlayingAs string `json:"playingAs"`
}

// systemEnvelope is the part of an inbound message the gateway inspects.
type systemEnvelope struct {
	System bool            `json:"system"`
	Type   string          `json:"type"`
	Seq    json.RawMessage `json:"seq,omitempty"`
}

type systemMessage struct {
	System bool   `json:"system"`
	Type   string `json:"type"`
	Seq    any    `json:"seq,omitempty"`
}
