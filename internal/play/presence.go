package play

import (
	"encoding/json"
	"sync"
)

// PresenceEntry records that a user has a connection handed to an application.
type PresenceEntry struct {
	UserID                 int64
	Conn                   Conn
	Application            string
	ApplicationDisplayName string
}

// OnlineState is what other services see for a connected user.
type OnlineState struct {
	Application            string `json:"application"`
	ApplicationDisplayName string `json:"applicationDisplayName"`
}

// Presence is the process-wide table of handed-off connections.
type Presence struct {
	mu      sync.RWMutex
	entries map[int64][]*PresenceEntry
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[int64][]*PresenceEntry)}
}

func (p *Presence) Add(e *PresenceEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[e.UserID] = append(p.entries[e.UserID], e)
}

// Remove deletes exactly e, leaving the user's other connections in place.
func (p *Presence) Remove(e *PresenceEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.entries[e.UserID]
	for i, cur := range list {
		if cur == e {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.entries, e.UserID)
	} else {
		p.entries[e.UserID] = list
	}
}

// Beam delivers payload to every connection of userID and returns how many there were.
func (p *Presence) Beam(userID int64, payload json.RawMessage) int {
	p.mu.RLock()
	targets := append([]*PresenceEntry(nil), p.entries[userID]...)
	p.mu.RUnlock()

	for _, e := range targets {
		e.Conn.SendRaw(payload)
	}
	return len(targets)
}

// OnlineState reports the application the user's first connection is in.
func (p *Presence) OnlineState(userID int64) (OnlineState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	list := p.entries[userID]
	if len(list) == 0 {
		return OnlineState{}, false
	}
	return OnlineState{
		Application:            list[0].Application,
		ApplicationDisplayName: list[0].ApplicationDisplayName,
	}, true
}

// Count is the number of live entries.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, list := range p.entries {
		n += len(list)
	}
	return n
}
