package mines

// Gamemode selects the board a room plays on.
type Gamemode string

const (
	GamemodeCooperative Gamemode = "cooperative"
	GamemodeTurnBased   Gamemode = "tb-cooperative"

	// competitive is accepted from clients but played cooperatively
	gamemodeCompetitive Gamemode = "competitive"
)

// normalizeGamemode returns the mode to play for a requested one, or false if the
// request names no mode.
func normalizeGamemode(requested string) (Gamemode, bool) {
	switch Gamemode(requested) {
	case GamemodeCooperative, gamemodeCompetitive:
		return GamemodeCooperative, true
	case GamemodeTurnBased:
		return GamemodeTurnBased, true
	}
	return "", false
}

type BoardParams struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Mines  int `json:"mines"`
}

const (
	minBoardSide = 5
	maxBoardSide = 50
)

// DefaultBoardParams is what a new room starts with.
var DefaultBoardParams = BoardParams{Width: 9, Height: 9, Mines: 10}

// ClampBoardParams bounds the sides to [5, 50] and then the mine count via clampMines.
func ClampBoardParams(width, height, mines int) BoardParams {
	width = clamp(width, minBoardSide, maxBoardSide)
	height = clamp(height, minBoardSide, maxBoardSide)
	return BoardParams{Width: width, Height: height, Mines: clampMines(width, height, mines)}
}

// clampMines caps mines at 90% of the tiles less a 3x3 opening, and never below one.
// The floor wins when the cap is below it.
func clampMines(width, height, mines int) int {
	maxMines := width*height*9/10 - 9
	if mines > maxMines {
		mines = maxMines
	}
	if mines < 1 {
		mines = 1
	}
	return mines
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
