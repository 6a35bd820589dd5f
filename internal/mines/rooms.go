package mines

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoRoomID means no free room id turned up within the retry budget.
var ErrNoRoomID = errors.New("no free room id")

const (
	roomIDBase  = 1_000_000
	roomIDRange = 10_000_000
	roomIDTries = 100
)

// Rooms is the directory of live rooms.
type Rooms struct {
	opts     RoomOptions
	recorder Recorder
	logger   *logrus.Logger

	mu    sync.Mutex
	rooms map[int64]*Room
}

// NewRooms creates an empty directory. recorder may be nil.
func NewRooms(opts RoomOptions, recorder Recorder, logger *logrus.Logger) *Rooms {
	return &Rooms{
		opts:     opts,
		recorder: recorder,
		logger:   logger,
		rooms:    make(map[int64]*Room),
	}
}

// Create registers an empty room under a random id that no live room uses.
func (rs *Rooms) Create() (*Room, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for i := 0; i < roomIDTries; i++ {
		id := roomIDBase + rand.Int64N(roomIDRange)
		if _, taken := rs.rooms[id]; taken {
			continue
		}

		room := newRoom(id, rs.opts, rs.recorder, rs.logger)
		room.onEmpty = rs.delete
		rs.rooms[id] = room
		rs.logger.Debugf("room %d created", id)
		return room, nil
	}
	return nil, ErrNoRoomID
}

func (rs *Rooms) Get(id int64) (*Room, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[id]
	return r, ok
}

// Snapshot lists the live rooms without holding the directory lock afterwards.
func (rs *Rooms) Snapshot() []*Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*Room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		out = append(out, r)
	}
	return out
}

func (rs *Rooms) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rooms)
}

func (rs *Rooms) delete(id int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.rooms, id)
	rs.logger.Debugf("room %d closed", id)
}
