package mines

// TileState is sent to clients as a number.
type TileState int

const (
	TileIdle TileState = iota
	TileRevealed
	TileFlagged
)

// tileGrid is what a tile needs to know about the board around it.
type tileGrid interface {
	tile(index int) *tile
	neighbours(index int) []int
	isOver() bool
}

// tileEvents are the board's callbacks for a tile. A tile has exactly one listener.
type tileEvents struct {
	updated      func(t *tile)
	revealed     func(t *tile)
	mineRevealed func(t *tile)
	flagged      func(t *tile, delta int)
}

type tile struct {
	index  int
	state  TileState
	isMine bool

	// adjacent is -1 until first asked for. Mines never move so it never goes stale.
	adjacent int

	grid   tileGrid
	events *tileEvents
}

func newTile(index int, grid tileGrid, events *tileEvents) *tile {
	return &tile{index: index, adjacent: -1, grid: grid, events: events}
}

func (t *tile) adjacentMines() int {
	if t.adjacent < 0 {
		t.adjacent = 0
		if !t.isMine {
			for _, n := range t.grid.neighbours(t.index) {
				if t.grid.tile(n).isMine {
					t.adjacent++
				}
			}
		}
	}
	return t.adjacent
}

// reveal opens an idle tile and floods outwards from zero tiles.
// Tiles that are not idle stop the flood. It reports whether this tile changed.
func (t *tile) reveal() bool {
	if t.state != TileIdle || t.grid.isOver() {
		return false
	}

	t.state = TileRevealed
	t.events.updated(t)
	t.events.revealed(t)

	if t.isMine {
		t.events.mineRevealed(t)
	} else if t.adjacentMines() == 0 {
		for _, n := range t.grid.neighbours(t.index) {
			t.grid.tile(n).reveal()
		}
	}
	return true
}

// flag toggles between idle and flagged. Revealed tiles cannot be flagged.
func (t *tile) flag() bool {
	switch t.state {
	case TileIdle:
		t.state = TileFlagged
		t.events.flagged(t, -1)
	case TileFlagged:
		t.state = TileIdle
		t.events.flagged(t, 1)
	default:
		return false
	}
	t.events.updated(t)
	return true
}

// sweep reveals every other neighbour once the flags (and exploded mines) around a
// revealed tile account for its number. It reports whether anything was revealed.
func (t *tile) sweep() bool {
	if t.state != TileRevealed {
		return false
	}

	marked := 0
	var rest []*tile
	for _, n := range t.grid.neighbours(t.index) {
		nt := t.grid.tile(n)
		if nt.state == TileFlagged || (nt.state == TileRevealed && nt.isMine) {
			marked++
		} else {
			rest = append(rest, nt)
		}
	}
	if marked != t.adjacentMines() {
		return false
	}

	changed := false
	for _, nt := range rest {
		if nt.reveal() {
			changed = true
		}
	}
	return changed
}

// update is the tileUpdate message for this tile. Contents are hidden until the tile
// is revealed or the game is over.
func (t *tile) update() tileUpdateMsg {
	msg := tileUpdateMsg{Type: "tileUpdate", Tile: t.index, State: t.state}
	if t.state == TileRevealed || t.grid.isOver() {
		isMine := t.isMine
		number := t.adjacentMines()
		msg.IsMine = &isMine
		msg.Number = &number
	}
	return msg
}
