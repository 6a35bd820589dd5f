package mines

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/models"
)

var (
	ErrRoomClosed = errors.New("room.closed")
	ErrRoomFull   = errors.New("room.full")
	// ErrRoomGone is returned when joining a room that was destroyed after lookup.
	ErrRoomGone = errors.New("room.invalid")
)

// Recorder receives every accepted board action. It must not block.
type Recorder interface {
	RecordAction(action models.BoardAction)
}

type RoomOptions struct {
	MaxUsers     int
	TurnTimeout  time.Duration
	EndGameDelay time.Duration
}

// Room is a lobby of sessions that plays one board at a time. members[0] is the host.
// Lock order is room before store, and a session's own lock is only ever taken
// inside a room lock, never around one.
type Room struct {
	id       int64
	opts     RoomOptions
	recorder Recorder
	logger   *logrus.Entry

	// onEmpty is called with the lock held when the last member leaves.
	onEmpty func(id int64)

	mu        sync.Mutex
	users     []*Session
	gamemode  Gamemode
	params    BoardParams
	playing   bool
	board     Board
	gameID    uuid.UUID
	actionIdx int
	endTimer  *time.Timer
	destroyed bool
}

func newRoom(id int64, opts RoomOptions, recorder Recorder, logger *logrus.Logger) *Room {
	return &Room{
		id:       id,
		opts:     opts,
		recorder: recorder,
		logger:   logger.WithField("room_id", id),
		gamemode: GamemodeCooperative,
		params:   DefaultBoardParams,
	}
}

func (r *Room) ID() int64 {
	return r.id
}

// Join appends s and sends everyone the new room state.
func (r *Room) Join(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.destroyed:
		return ErrRoomGone
	case r.playing:
		return ErrRoomClosed
	case len(r.users) >= r.opts.MaxUsers:
		return ErrRoomFull
	}

	r.users = append(r.users, s)
	s.enterRoom(r)
	s.conn.Send(lobbyChangeMsg{Type: "lobbyChange", LobbyID: r.id})
	r.beamRoomUpdateUnsafe()

	r.logger.Debugf("%s joined", s.Username())
	return nil
}

// Leave removes s if it is a member. The last member out destroys the room.
func (r *Room) Leave(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexUnsafe(s)
	if idx < 0 {
		return
	}
	r.users = append(r.users[:idx], r.users[idx+1:]...)

	if r.playing && r.board != nil {
		r.board.RemoveUser(s)
	}

	s.leaveRoom(r)
	s.conn.Send(lobbyChangeMsg{Type: "lobbyChange", LobbyID: -1})
	r.logger.Debugf("%s left", s.Username())

	if len(r.users) == 0 {
		r.destroyed = true
		if r.endTimer != nil {
			r.endTimer.Stop()
			r.endTimer = nil
		}
		if r.board != nil {
			r.board.Stop()
			r.board = nil
		}
		r.playing = false
		if r.onEmpty != nil {
			r.onEmpty(r.id)
		}
		return
	}
	r.beamRoomUpdateUnsafe()
}

// ChangeGamemode is host only. An unknown mode re-announces the current one.
func (r *Room) ChangeGamemode(s *Session, requested string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostUnsafe(s) || r.playing {
		return
	}
	if gm, ok := normalizeGamemode(requested); ok {
		r.gamemode = gm
	}
	r.broadcastUnsafe(gamemodeMsg{Type: "gamemodeChange", Gamemode: r.gamemode})
}

// ChangeBoardParams is host only. The clamped values are always echoed.
func (r *Room) ChangeBoardParams(s *Session, width, height, mines int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostUnsafe(s) || r.playing {
		return
	}
	r.params = ClampBoardParams(width, height, mines)
	r.broadcastUnsafe(r.boardParamsMsgUnsafe())
}

// StartGame is host only.
func (r *Room) StartGame(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostUnsafe(s) || r.playing {
		return
	}

	base := newCoopBoard(r, r.params)
	var board Board = base
	if r.gamemode == GamemodeTurnBased {
		board = newTurnBoard(r, base, r.opts.TurnTimeout)
	}

	r.playing = true
	r.board = board
	r.gameID = uuid.New()
	r.actionIdx = 0

	r.broadcastUnsafe(boardParamsMsg{
		Type:   "boardSetup",
		Width:  r.params.Width,
		Height: r.params.Height,
		Mines:  r.params.Mines,
	})
	for _, u := range r.users {
		u.setState(StateGame)
	}
	board.Start()

	r.logger.Infof("game %s started (%s, %dx%d, %d mines)", r.gameID, r.gamemode, r.params.Width, r.params.Height, r.params.Mines)
}

// BoardAction forwards to the board. Actions that arrive between games are dropped.
func (r *Room) BoardAction(s *Session, action string, tile int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexUnsafe(s) < 0 || !r.playing || r.board == nil {
		return nil
	}
	_, err := r.board.BoardAction(s, action, tile)
	return err
}

func (r *Room) CurrentTileChanged(s *Session, tile int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexUnsafe(s) < 0 || !r.playing || r.board == nil {
		return nil
	}
	return r.board.CurrentTileChanged(s, tile)
}

func (r *Room) SendCannedMessage(s *Session, message json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexUnsafe(s) < 0 {
		return
	}
	r.broadcastUnsafe(cannedMsg{
		Type:     "cannedMessage",
		User:     s.ID(),
		Username: s.Username(),
		Message:  message,
	})
}

// Playing reports whether a game is in progress.
func (r *Room) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// Members returns a snapshot of the member list in join order.
func (r *Room) Members() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Session(nil), r.users...)
}

// endGameUnsafe returns everyone to the lobby.
func (r *Room) endGameUnsafe() {
	r.endTimer = nil
	if r.board != nil {
		r.board.Stop()
	}
	r.board = nil
	r.playing = false

	for _, u := range r.users {
		u.setState(StateLobby)
	}
	r.beamRoomUpdateUnsafe()
	r.logger.Infof("game %s ended", r.gameID)
}

func (r *Room) beamRoomUpdateUnsafe() {
	users := make([]roomUser, 0, len(r.users))
	for i, u := range r.users {
		users = append(users, roomUser{
			Session:  u.ID(),
			Username: u.Username(),
			Picture:  u.Picture(),
			Colour:   u.Colour(),
			IsHost:   i == 0,
		})
	}

	r.broadcastUnsafe(roomUpdateMsg{Type: "roomUpdate", Users: users, MaxUsers: r.opts.MaxUsers})
	r.broadcastUnsafe(gamemodeMsg{Type: "gamemodeChange", Gamemode: r.gamemode})
	r.broadcastUnsafe(r.boardParamsMsgUnsafe())
	for i, u := range r.users {
		u.conn.Send(hostUpdateMsg{Type: "hostUpdate", IsHost: i == 0})
	}
}

func (r *Room) boardParamsMsgUnsafe() boardParamsMsg {
	return boardParamsMsg{
		Type:   "boardParamsChange",
		Width:  r.params.Width,
		Height: r.params.Height,
		Mines:  r.params.Mines,
	}
}

func (r *Room) broadcastUnsafe(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Errorf("failed to marshal broadcast: %v", err)
		return
	}
	for _, u := range r.users {
		u.conn.SendRaw(data)
	}
}

func (r *Room) isHostUnsafe(s *Session) bool {
	return len(r.users) > 0 && r.users[0] == s
}

func (r *Room) indexUnsafe(s *Session) int {
	for i, u := range r.users {
		if u == s {
			return i
		}
	}
	return -1
}

// boardHost, called by the board with the lock held.

func (r *Room) broadcast(v any) {
	r.broadcastUnsafe(v)
}

func (r *Room) members() []*Session {
	return r.users
}

func (r *Room) schedule(b Board, d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.board != b {
			return
		}
		fn()
	})
}

func (r *Room) finish(b Board) {
	r.endTimer = r.schedule(b, r.opts.EndGameDelay, r.endGameUnsafe)
}

func (r *Room) record(s *Session, action string, tile int) {
	idx := r.actionIdx
	r.actionIdx++
	if r.recorder == nil {
		return
	}
	r.recorder.RecordAction(models.BoardAction{
		GameID:      r.gameID,
		ActionIndex: idx,
		ActorUserID: s.UserID(),
		ActionType:  action,
		Tile:        tile,
		Timestamp:   time.Now().UnixMilli(),
	})
}
