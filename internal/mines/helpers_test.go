package mines

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/models"
	"github.com/vicr123/entertaining-server/internal/play/playtest"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeHost stands in for a room. Scheduled callbacks are kept for the test to fire.
type fakeHost struct {
	users    []*Session
	sent     [][]byte
	finished int
	records  []string
	pending  []func()
}

func (h *fakeHost) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	h.sent = append(h.sent, data)
}

func (h *fakeHost) members() []*Session {
	return h.users
}

func (h *fakeHost) schedule(_ Board, _ time.Duration, fn func()) *time.Timer {
	h.pending = append(h.pending, fn)
	return time.NewTimer(time.Hour)
}

func (h *fakeHost) finish(Board) {
	h.finished++
}

func (h *fakeHost) record(_ *Session, action string, _ int) {
	h.records = append(h.records, action)
}

func (h *fakeHost) remove(s *Session) {
	kept := make([]*Session, 0, len(h.users))
	for _, u := range h.users {
		if u != s {
			kept = append(kept, u)
		}
	}
	h.users = kept
}

func (h *fakeHost) messages(typ string) []map[string]any {
	var out []map[string]any
	for _, data := range h.sent {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err == nil && m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (h *fakeHost) reset() {
	h.sent = nil
}

// boardWithMines builds a cooperative board with mines at exactly the given tiles.
func boardWithMines(h *fakeHost, width, height int, mines ...int) *coopBoard {
	b := newEmptyCoopBoard(h, BoardParams{Width: width, Height: height, Mines: len(mines)})
	for _, i := range mines {
		b.tiles[i].isMine = true
	}
	return b
}

func testSession(name string, id int64) (*Session, *playtest.Conn) {
	conn := playtest.NewConn()
	s := NewSession(conn, models.Identity{UserID: id, Username: name, Picture: "pic-" + name}, nil, nil, quietLogger())
	return s, conn
}

type memoryRecorder struct {
	mu      sync.Mutex
	actions []models.BoardAction
}

func (r *memoryRecorder) RecordAction(a models.BoardAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func (r *memoryRecorder) all() []models.BoardAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BoardAction(nil), r.actions...)
}

type staticFriends map[int64][]models.Friend

func (f staticFriends) FriendsForUser(_ context.Context, userID int64) ([]models.Friend, error) {
	return f[userID], nil
}
