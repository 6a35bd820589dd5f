package mines

import (
	"fmt"
	"time"

	"github.com/vicr123/entertaining-server/internal/play"
)

// turnBoard wraps a cooperative board so only one member acts at a time. Turn order
// follows current room membership; a turn that is not taken within timeout is skipped.
type turnBoard struct {
	base    *coopBoard
	host    boardHost
	timeout time.Duration

	current        int
	currentSession *Session
	turnID         int
	timer          *time.Timer
}

func newTurnBoard(host boardHost, base *coopBoard, timeout time.Duration) *turnBoard {
	b := &turnBoard{
		base:    base,
		host:    host,
		timeout: timeout,
		current: -1,
	}
	base.self = b
	return b
}

func (b *turnBoard) Start() {
	b.base.Start()
	b.advance()
}

func (b *turnBoard) GameIsOver() bool {
	return b.base.GameIsOver()
}

func (b *turnBoard) Stop() {
	b.cancelTimer()
}

func (b *turnBoard) cancelTimer() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// advance hands the turn to the next member and arms a fresh timeout.
// The previous timeout is always cancelled first, and turnID makes a timer that
// already fired harmless.
func (b *turnBoard) advance() {
	b.cancelTimer()
	b.turnID++

	members := b.host.members()
	if b.base.GameIsOver() || len(members) == 0 {
		b.currentSession = nil
		return
	}

	b.current = (b.current + 1) % len(members)
	b.currentSession = members[b.current]

	id := b.turnID
	b.timer = b.host.schedule(b, b.timeout, func() {
		if b.turnID != id {
			return
		}
		b.advance()
	})

	b.host.broadcast(currentPlayerMsg{
		Type:    "currentPlayerChange",
		Session: b.currentSession.ID(),
		Timeout: time.Now().Add(b.timeout).UnixMilli(),
	})
}

func (b *turnBoard) BoardAction(s *Session, action string, tile int) (bool, error) {
	switch action {
	case ActionReveal, ActionFlag, ActionSweep:
		if err := b.base.validTile(tile); err != nil {
			return false, err
		}
	case ActionSkip:
	default:
		return false, fmt.Errorf("%w: unknown board action %q", play.ErrProtocol, action)
	}

	if s != b.currentSession || b.base.GameIsOver() {
		return false, nil
	}

	if action == ActionSkip {
		b.host.record(s, action, tile)
		b.advance()
		return true, nil
	}

	changed, err := b.base.BoardAction(s, action, tile)
	if err != nil {
		return false, err
	}
	if changed && (action == ActionReveal || action == ActionSweep) {
		// advance is a no-op once the game is over
		b.advance()
	}
	return changed, nil
}

// CurrentTileChanged only shows the turn-holder's cursor.
func (b *turnBoard) CurrentTileChanged(s *Session, tile int) error {
	if tile != -1 {
		if err := b.base.validTile(tile); err != nil {
			return err
		}
	}
	if s != b.currentSession {
		return nil
	}

	tiles := []hoverEntry{}
	if tile != -1 {
		tiles = append(tiles, hoverEntry{Tile: tile, User: s.ID(), Colour: s.Colour()})
	}
	b.host.broadcast(currentTilesMsg{Type: "currentTilesChanged", Tiles: tiles})
	return nil
}

// RemoveUser runs after s has left the member list. If s held the turn the turn
// passes on, otherwise the index is re-pointed at the same holder.
func (b *turnBoard) RemoveUser(s *Session) {
	if b.base.GameIsOver() {
		return
	}
	members := b.host.members()
	if len(members) == 0 {
		b.cancelTimer()
		b.currentSession = nil
		return
	}

	if s == b.currentSession {
		b.current--
		b.advance()
		return
	}
	for i, m := range members {
		if m == b.currentSession {
			b.current = i
			return
		}
	}
}
