// Package mines is the Entertaining Mines application: rooms of players sharing a
// minesweeper board, cooperatively or taking turns.
package mines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/models"
	"github.com/vicr123/entertaining-server/internal/play"
)

const (
	Name        = "EntertainingMines"
	DisplayName = "Entertaining Mines"
)

// State is where a session is in the application.
type State string

const (
	StateIdle  State = "idle"
	StateLobby State = "lobby"
	StateGame  State = "game"
)

var palette = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f1c40f", "#9b59b6",
	"#e67e22", "#1abc9c", "#ff6fb5", "#7f8c8d", "#34495e",
}

// FriendLister looks up a user's friends.
type FriendLister interface {
	FriendsForUser(ctx context.Context, userID int64) ([]models.Friend, error)
}

// Session is one connected player.
type Session struct {
	id      string
	ident   models.Identity
	colour  string
	conn    play.Conn
	rooms   *Rooms
	friends FriendLister
	logger  *logrus.Entry

	mu    sync.Mutex
	state State
	room  *Room
}

// NewFactory builds sessions for the gateway. friends may be nil.
func NewFactory(rooms *Rooms, friends FriendLister, logger *logrus.Logger) play.Factory {
	return func(conn play.Conn, ident models.Identity) play.Application {
		return NewSession(conn, ident, rooms, friends, logger)
	}
}

func NewSession(conn play.Conn, ident models.Identity, rooms *Rooms, friends FriendLister, logger *logrus.Logger) *Session {
	s := &Session{
		id:      uuid.NewString(),
		ident:   ident,
		colour:  palette[rand.IntN(len(palette))],
		conn:    conn,
		rooms:   rooms,
		friends: friends,
		state:   StateIdle,
	}
	s.logger = logger.WithFields(logrus.Fields{"user_id": ident.UserID, "session": s.id})
	conn.Send(sessionIDMsg{Type: "sessionIdChanged", Session: s.id})
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() int64 {
	return s.ident.UserID
}

func (s *Session) Username() string {
	return s.ident.Username
}

func (s *Session) Picture() string {
	return s.ident.Picture
}

func (s *Session) Colour() string {
	return s.colour
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) currentRoom() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// enterRoom, leaveRoom and setState are called by the room with its lock held.

func (s *Session) enterRoom(r *Room) {
	s.mu.Lock()
	s.room = r
	s.mu.Unlock()
	s.setState(StateLobby)
}

func (s *Session) leaveRoom(r *Room) {
	s.mu.Lock()
	if s.room == r {
		s.room = nil
	}
	s.mu.Unlock()
	s.setState(StateIdle)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed {
		s.conn.Send(stateChangeMsg{Type: "stateChange", State: string(st)})
	}
}

func protocolErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", play.ErrProtocol, fmt.Sprintf(format, args...))
}

func decode(msg []byte, v any) error {
	if err := json.Unmarshal(msg, v); err != nil {
		return protocolErr("malformed message: %v", err)
	}
	return nil
}

// HandleMessage dispatches one client message.
func (s *Session) HandleMessage(ctx context.Context, msg []byte) error {
	var env struct {
		Type string `json:"type"`
	}
	if err := decode(msg, &env); err != nil {
		return err
	}

	switch env.Type {
	case "createRoom":
		return s.createRoom()

	case "joinRoom":
		var req joinRoomRequest
		if err := decode(msg, &req); err != nil {
			return err
		}
		return s.joinRoom(req.RoomID)

	case "leaveRoom":
		room := s.currentRoom()
		if room == nil {
			return protocolErr("leaveRoom while not in a room")
		}
		room.Leave(s)
		return nil

	case "availableRooms":
		return s.availableRooms(ctx)

	case "changeGamemode":
		var req gamemodeRequest
		if err := decode(msg, &req); err != nil {
			return err
		}
		return s.inRoom(env.Type, func(r *Room) error {
			r.ChangeGamemode(s, req.Gamemode)
			return nil
		})

	case "changeBoardParams":
		var req boardParamsRequest
		if err := decode(msg, &req); err != nil {
			return err
		}
		return s.inRoom(env.Type, func(r *Room) error {
			r.ChangeBoardParams(s, req.Width, req.Height, req.Mines)
			return nil
		})

	case "startGame":
		return s.inRoom(env.Type, func(r *Room) error {
			r.StartGame(s)
			return nil
		})

	case "boardAction":
		var req boardActionRequest
		if err := decode(msg, &req); err != nil {
			return err
		}
		tile := 0
		if req.Tile != nil {
			tile = *req.Tile
		} else if req.Action != ActionSkip {
			return protocolErr("boardAction without tile")
		}
		return s.inRoom(env.Type, func(r *Room) error {
			return r.BoardAction(s, req.Action, tile)
		})

	case "currentTileChanged":
		var req currentTileRequest
		if err := decode(msg, &req); err != nil {
			return err
		}
		if req.Tile == nil {
			return protocolErr("currentTileChanged without tile")
		}
		return s.inRoom(env.Type, func(r *Room) error {
			return r.CurrentTileChanged(s, *req.Tile)
		})

	case "sendMessage":
		var req cannedMessageRequest
		if err := decode(msg, &req); err != nil {
			return err
		}
		return s.inRoom(env.Type, func(r *Room) error {
			r.SendCannedMessage(s, req.Message)
			return nil
		})
	}

	return protocolErr("unknown message type %q", env.Type)
}

func (s *Session) inRoom(typ string, fn func(r *Room) error) error {
	room := s.currentRoom()
	if room == nil {
		return protocolErr("%s while not in a room", typ)
	}
	return fn(room)
}

func (s *Session) createRoom() error {
	if s.State() != StateIdle {
		return protocolErr("createRoom while in a room")
	}

	room, err := s.rooms.Create()
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	if err := room.Join(s); err != nil {
		s.conn.Send(joinRoomFailedMsg{Type: "joinRoomFailed", Reason: joinFailureReason(err)})
	}
	return nil
}

func (s *Session) joinRoom(id int64) error {
	if s.State() != StateIdle {
		return protocolErr("joinRoom while in a room")
	}

	room, ok := s.rooms.Get(id)
	if !ok {
		s.conn.Send(joinRoomFailedMsg{Type: "joinRoomFailed", Reason: ErrRoomGone.Error()})
		return nil
	}
	if err := room.Join(s); err != nil {
		s.conn.Send(joinRoomFailedMsg{Type: "joinRoomFailed", Reason: joinFailureReason(err)})
	}
	return nil
}

func joinFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrRoomClosed):
		return ErrRoomClosed.Error()
	case errors.Is(err, ErrRoomFull):
		return ErrRoomFull.Error()
	}
	return ErrRoomGone.Error()
}

// availableRooms lists the rooms friends are sitting in, one entry per friend per room.
func (s *Session) availableRooms(ctx context.Context) error {
	reply := availableRoomsMsg{Type: "availableRoomsReply", Rooms: []availableRoom{}}
	if s.friends == nil {
		s.conn.Send(reply)
		return nil
	}

	friends, err := s.friends.FriendsForUser(ctx, s.ident.UserID)
	if err != nil {
		return fmt.Errorf("failed to list friends: %w", err)
	}

	byUser := make(map[int64][]int64)
	for _, room := range s.rooms.Snapshot() {
		for _, m := range room.Members() {
			byUser[m.UserID()] = append(byUser[m.UserID()], room.ID())
		}
	}
	for _, f := range friends {
		for _, roomID := range byUser[f.UserID] {
			reply.Rooms = append(reply.Rooms, availableRoom{Friend: f.Username, RoomID: roomID})
		}
	}

	s.conn.Send(reply)
	return nil
}

// Close leaves the current room.
func (s *Session) Close() {
	if room := s.currentRoom(); room != nil {
		room.Leave(s)
	}
	s.logger.Debug("mines session closed")
}
