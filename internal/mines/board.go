package mines

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/vicr123/entertaining-server/internal/play"
)

// Board actions a client may send.
const (
	ActionReveal = "reveal"
	ActionFlag   = "flag"
	ActionSweep  = "sweep"
	ActionSkip   = "skip"
)

// Board is a game in progress. Every method is called with the owning room's lock held.
type Board interface {
	Start()
	// BoardAction applies an action and reports whether it changed anything.
	BoardAction(s *Session, action string, tile int) (bool, error)
	CurrentTileChanged(s *Session, tile int) error
	RemoveUser(s *Session)
	GameIsOver() bool
	// Stop cancels any pending timers.
	Stop()
}

// boardHost is the room as seen by its board.
type boardHost interface {
	broadcast(v any)
	members() []*Session
	// schedule runs fn after d with the room locked, unless b is no longer the room's board.
	schedule(b Board, d time.Duration, fn func()) *time.Timer
	// finish ends the game after the grace delay.
	finish(b Board)
	record(s *Session, action string, tile int)
}

// coopBoard lets every member act at any time.
type coopBoard struct {
	host   boardHost
	params BoardParams
	tiles  []*tile
	self   Board

	minesRemaining int
	revealedSafe   int
	gameOver       bool
	exploded       bool

	hovers map[*Session]int
}

func newCoopBoard(host boardHost, params BoardParams) *coopBoard {
	b := newEmptyCoopBoard(host, params)
	b.placeMines(func() int { return rand.IntN(len(b.tiles)) })
	return b
}

// newEmptyCoopBoard builds the grid without mines.
func newEmptyCoopBoard(host boardHost, params BoardParams) *coopBoard {
	b := &coopBoard{
		host:           host,
		params:         params,
		tiles:          make([]*tile, params.Width*params.Height),
		minesRemaining: params.Mines,
		hovers:         make(map[*Session]int),
	}
	b.self = b

	events := &tileEvents{
		updated:      b.tileUpdated,
		revealed:     b.tileRevealed,
		mineRevealed: b.revealedMine,
		flagged:      b.tileFlagged,
	}
	for i := range b.tiles {
		b.tiles[i] = newTile(i, b, events)
	}
	return b
}

// placeMines picks distinct tiles by rejection sampling. The mine clamp keeps the
// count well under the tile count, so this terminates quickly.
func (b *coopBoard) placeMines(pick func() int) {
	for placed := 0; placed < b.params.Mines; {
		t := b.tiles[pick()]
		if t.isMine {
			continue
		}
		t.isMine = true
		placed++
	}
}

func (b *coopBoard) tile(index int) *tile {
	return b.tiles[index]
}

func (b *coopBoard) neighbours(index int) []int {
	w, h := b.params.Width, b.params.Height
	x, y := index%w, index/w

	out := make([]int, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx >= 0 && nx < w && ny >= 0 && ny < h {
				out = append(out, ny*w+nx)
			}
		}
	}
	return out
}

func (b *coopBoard) isOver() bool {
	return b.gameOver
}

func (b *coopBoard) GameIsOver() bool {
	return b.gameOver
}

func (b *coopBoard) Start() {
	b.host.broadcast(minesRemainingMsg{Type: "minesRemainingChanged", MinesRemaining: b.minesRemaining})
}

func (b *coopBoard) Stop() {}

func (b *coopBoard) validTile(tile int) error {
	if tile < 0 || tile >= len(b.tiles) {
		return fmt.Errorf("%w: tile %d out of range", play.ErrProtocol, tile)
	}
	return nil
}

func (b *coopBoard) BoardAction(s *Session, action string, tile int) (bool, error) {
	switch action {
	case ActionReveal, ActionFlag, ActionSweep:
		if err := b.validTile(tile); err != nil {
			return false, err
		}
	case ActionSkip:
		// only meaningful with turns
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown board action %q", play.ErrProtocol, action)
	}
	if b.gameOver {
		return false, nil
	}

	var changed bool
	t := b.tiles[tile]
	switch action {
	case ActionReveal:
		changed = t.reveal()
	case ActionFlag:
		changed = t.flag()
	case ActionSweep:
		changed = t.sweep()
	}

	if changed {
		b.host.record(s, action, tile)
	}
	if b.gameOver {
		b.endGame(s)
	}
	return changed, nil
}

// CurrentTileChanged shows everyone's cursor. A tile of -1 clears it.
func (b *coopBoard) CurrentTileChanged(s *Session, tile int) error {
	if tile != -1 {
		if err := b.validTile(tile); err != nil {
			return err
		}
	}
	if tile == -1 {
		delete(b.hovers, s)
	} else {
		b.hovers[s] = tile
	}
	b.broadcastHovers()
	return nil
}

func (b *coopBoard) broadcastHovers() {
	tiles := make([]hoverEntry, 0, len(b.hovers))
	for _, m := range b.host.members() {
		if tile, ok := b.hovers[m]; ok {
			tiles = append(tiles, hoverEntry{Tile: tile, User: m.ID(), Colour: m.Colour()})
		}
	}
	b.host.broadcast(currentTilesMsg{Type: "currentTilesChanged", Tiles: tiles})
}

func (b *coopBoard) RemoveUser(s *Session) {
	if _, ok := b.hovers[s]; ok {
		delete(b.hovers, s)
		if !b.gameOver {
			b.broadcastHovers()
		}
	}
}

func (b *coopBoard) tileUpdated(t *tile) {
	b.host.broadcast(t.update())
}

func (b *coopBoard) tileRevealed(t *tile) {
	if t.isMine {
		return
	}
	b.revealedSafe++
	if b.revealedSafe == len(b.tiles)-b.params.Mines {
		b.gameOver = true
	}
}

func (b *coopBoard) tileFlagged(_ *tile, delta int) {
	b.minesRemaining += delta
	b.host.broadcast(minesRemainingMsg{Type: "minesRemainingChanged", MinesRemaining: b.minesRemaining})
}

// revealedMine freezes the board and shows every tile. The endGame message goes out
// once the triggering action has finished.
func (b *coopBoard) revealedMine(*tile) {
	b.gameOver = true
	b.exploded = true
	for _, t := range b.tiles {
		b.host.broadcast(t.update())
	}
}

// endGame announces the result and hands the room back after the grace delay.
// It runs once, right after the action that ended the game.
func (b *coopBoard) endGame(s *Session) {
	msg := endGameMsg{Type: "endGame", Victory: !b.exploded}
	if !msg.Victory && s != nil {
		msg.User = s.Username()
		msg.Picture = s.Picture()
	}
	b.host.broadcast(msg)
	b.host.finish(b.self)
}
