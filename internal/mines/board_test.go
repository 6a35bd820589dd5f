package mines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vicr123/entertaining-server/internal/play"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, clampMines(3, 3, 100), "cap of -1 falls back to the floor")
	assert.Equal(t, 1, clampMines(10, 10, 0))
	assert.Equal(t, 81, clampMines(10, 10, 500))
	assert.Equal(t, 40, clampMines(10, 10, 40))

	assert.Equal(t, BoardParams{Width: 5, Height: 5, Mines: 13}, ClampBoardParams(3, 3, 100))
	assert.Equal(t, BoardParams{Width: 50, Height: 50, Mines: 2241}, ClampBoardParams(80, 51, 99999))
	assert.Equal(t, BoardParams{Width: 9, Height: 9, Mines: 1}, ClampBoardParams(9, 9, -3))
}

func TestPlaceMines_ExactCount(t *testing.T) {
	h := &fakeHost{}
	params := ClampBoardParams(50, 50, 99999)
	b := newCoopBoard(h, params)

	n := 0
	for _, tl := range b.tiles {
		if tl.isMine {
			n++
		}
	}
	assert.Equal(t, params.Mines, n)
}

func TestNeighbours(t *testing.T) {
	b := boardWithMines(&fakeHost{}, 5, 4)
	assert.ElementsMatch(t, []int{1, 5, 6}, b.neighbours(0))
	assert.ElementsMatch(t, []int{3, 8, 9}, b.neighbours(4))
	assert.ElementsMatch(t, []int{0, 1, 2, 5, 7, 10, 11, 12}, b.neighbours(6))
	assert.ElementsMatch(t, []int{13, 14, 18}, b.neighbours(19))
}

func TestReveal_FloodFillWins(t *testing.T) {
	h := &fakeHost{}
	// single mine in the far corner: everything else is one connected region
	b := boardWithMines(h, 5, 5, 24)
	s, _ := testSession("alice", 1)

	changed, err := b.BoardAction(s, ActionReveal, 0)
	require.NoError(t, err)
	assert.True(t, changed)

	updates := h.messages("tileUpdate")
	seen := map[float64]int{}
	for _, u := range updates {
		seen[u["tile"].(float64)]++
		assert.EqualValues(t, TileRevealed, u["state"])
		assert.Equal(t, false, u["isMine"])
	}
	assert.Len(t, seen, 24)
	for tile, n := range seen {
		assert.Equal(t, 1, n, "tile %v revealed once", tile)
	}
	assert.NotContains(t, seen, float64(24))

	assert.True(t, b.GameIsOver())
	end := h.messages("endGame")
	require.Len(t, end, 1)
	assert.Equal(t, true, end[0]["victory"])
	assert.Equal(t, 1, h.finished)
	assert.Equal(t, []string{ActionReveal}, h.records)
}

func TestReveal_FloodStopsAtNumbersAndFlags(t *testing.T) {
	h := &fakeHost{}
	// a wall of mines down column 2 splits the board
	b := boardWithMines(h, 5, 5, 2, 7, 12, 17, 22)
	s, _ := testSession("alice", 1)

	_, err := b.BoardAction(s, ActionFlag, 5)
	require.NoError(t, err)
	h.reset()

	_, err = b.BoardAction(s, ActionReveal, 0)
	require.NoError(t, err)

	revealed := map[int]bool{}
	for _, u := range h.messages("tileUpdate") {
		revealed[int(u["tile"].(float64))] = true
	}
	// 1 and 6 border the wall, and the flag on 5 cuts off the rest of column 0
	assert.Equal(t, map[int]bool{0: true, 1: true, 6: true}, revealed)
	assert.Equal(t, TileFlagged, b.tiles[5].state)
	assert.Equal(t, TileIdle, b.tiles[10].state)
	assert.Equal(t, TileIdle, b.tiles[3].state)
	assert.False(t, b.GameIsOver())
}

func TestReveal_MineLosesAndFreezes(t *testing.T) {
	h := &fakeHost{}
	b := boardWithMines(h, 5, 5, 12)
	s, _ := testSession("alice", 1)

	changed, err := b.BoardAction(s, ActionReveal, 12)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, b.GameIsOver())

	// the mine itself, then every tile in its terminal state
	updates := h.messages("tileUpdate")
	require.Len(t, updates, 1+25)
	for _, u := range updates[1:] {
		assert.Contains(t, u, "isMine")
		assert.Contains(t, u, "number")
	}
	assert.Equal(t, true, updates[1+12]["isMine"])
	assert.EqualValues(t, TileIdle, updates[1]["state"])
	assert.EqualValues(t, 1, updates[1+6]["number"])

	end := h.messages("endGame")
	require.Len(t, end, 1)
	assert.Equal(t, map[string]any{"type": "endGame", "victory": false, "user": "alice", "picture": "pic-alice"}, end[0])
	assert.Equal(t, 1, h.finished)

	h.reset()
	for _, action := range []string{ActionReveal, ActionFlag, ActionSweep} {
		changed, err := b.BoardAction(s, action, 0)
		require.NoError(t, err)
		assert.False(t, changed)
	}
	assert.Empty(t, h.sent, "nothing changes once the game is over")
	assert.Equal(t, 1, h.finished)
}

func TestFlag(t *testing.T) {
	h := &fakeHost{}
	b := boardWithMines(h, 5, 5, 24)
	s, _ := testSession("alice", 1)

	changed, err := b.BoardAction(s, ActionFlag, 3)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, TileFlagged, b.tiles[3].state)

	flagged := h.messages("tileUpdate")
	require.Len(t, flagged, 1)
	assert.NotContains(t, flagged[0], "isMine", "flagged tiles keep their secret")

	// flags go past the mine count
	_, err = b.BoardAction(s, ActionFlag, 4)
	require.NoError(t, err)
	remaining := h.messages("minesRemainingChanged")
	require.Len(t, remaining, 2)
	assert.EqualValues(t, 0, remaining[0]["minesRemaining"])
	assert.EqualValues(t, -1, remaining[1]["minesRemaining"])

	_, err = b.BoardAction(s, ActionFlag, 3)
	require.NoError(t, err)
	assert.Equal(t, TileIdle, b.tiles[3].state)
	assert.EqualValues(t, 0, h.messages("minesRemainingChanged")[2]["minesRemaining"])

	// revealing a flagged tile does nothing
	changed, err = b.BoardAction(s, ActionReveal, 4)
	require.NoError(t, err)
	assert.False(t, changed)

	// a revealed tile cannot be flagged
	_, err = b.BoardAction(s, ActionReveal, 18)
	require.NoError(t, err)
	h.reset()
	changed, err = b.BoardAction(s, ActionFlag, 18)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, h.sent)
}

func TestSweep(t *testing.T) {
	// tile 1 sits between the mines at 0 and 2, so its number is 2
	setup := func(t *testing.T, flags ...int) (*fakeHost, *coopBoard) {
		h := &fakeHost{}
		b := boardWithMines(h, 5, 5, 0, 2)
		s, _ := testSession("alice", 1)
		_, err := b.BoardAction(s, ActionReveal, 1)
		require.NoError(t, err)
		require.Equal(t, 2, b.tiles[1].adjacentMines())
		for _, f := range flags {
			_, err := b.BoardAction(s, ActionFlag, f)
			require.NoError(t, err)
		}
		h.reset()
		return h, b
	}
	s, _ := testSession("alice", 1)

	t.Run("matching flags reveal the rest", func(t *testing.T) {
		h, b := setup(t, 0, 2)
		changed, err := b.BoardAction(s, ActionSweep, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		for _, i := range []int{5, 6, 7} {
			assert.Equal(t, TileRevealed, b.tiles[i].state, "tile %d", i)
		}
		assert.Len(t, h.messages("tileUpdate"), 3)
		assert.False(t, b.GameIsOver())
	})

	t.Run("too few flags", func(t *testing.T) {
		h, b := setup(t, 0)
		changed, err := b.BoardAction(s, ActionSweep, 1)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Empty(t, h.sent)
	})

	t.Run("too many flags", func(t *testing.T) {
		h, b := setup(t, 0, 2, 6)
		changed, err := b.BoardAction(s, ActionSweep, 1)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Empty(t, h.sent)
	})

	t.Run("wrong flags detonate", func(t *testing.T) {
		_, b := setup(t, 0, 6)
		changed, err := b.BoardAction(s, ActionSweep, 1)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, b.GameIsOver())
	})

	t.Run("only on revealed tiles", func(t *testing.T) {
		h, b := setup(t, 0, 2)
		changed, err := b.BoardAction(s, ActionSweep, 7)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Empty(t, h.sent)
	})
}

func TestBoardAction_ProtocolErrors(t *testing.T) {
	b := boardWithMines(&fakeHost{}, 5, 5, 0)
	s, _ := testSession("alice", 1)

	_, err := b.BoardAction(s, ActionReveal, 25)
	assert.ErrorIs(t, err, play.ErrProtocol)
	_, err = b.BoardAction(s, ActionReveal, -1)
	assert.ErrorIs(t, err, play.ErrProtocol)
	_, err = b.BoardAction(s, "detonate", 3)
	assert.ErrorIs(t, err, play.ErrProtocol)
	assert.ErrorIs(t, b.CurrentTileChanged(s, 99), play.ErrProtocol)

	changed, err := b.BoardAction(s, ActionSkip, 0)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCoopHovers(t *testing.T) {
	h := &fakeHost{}
	alice, _ := testSession("alice", 1)
	bob, _ := testSession("bob", 2)
	h.users = []*Session{alice, bob}
	b := boardWithMines(h, 5, 5, 0)

	require.NoError(t, b.CurrentTileChanged(alice, 3))
	require.NoError(t, b.CurrentTileChanged(bob, 4))

	last := h.messages("currentTilesChanged")
	require.Len(t, last, 2)
	tiles := last[1]["tiles"].([]any)
	require.Len(t, tiles, 2)
	assert.Equal(t, alice.ID(), tiles[0].(map[string]any)["user"])
	assert.EqualValues(t, 4, tiles[1].(map[string]any)["tile"])

	h.remove(bob)
	b.RemoveUser(bob)
	last = h.messages("currentTilesChanged")
	assert.Len(t, last[len(last)-1]["tiles"].([]any), 1)
}
