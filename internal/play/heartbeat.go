package play

import (
	"sync"
	"time"

	"github.com/coder/websocket"
)

// heartbeat sends serverPing every interval and closes the connection once more than
// maxMissed pings are outstanding.
type heartbeat struct {
	conn      Conn
	interval  time.Duration
	maxMissed int

	mu      sync.Mutex
	next    int
	lastAck int

	stopOnce sync.Once
	stopC    chan struct{}
}

func newHeartbeat(conn Conn, interval time.Duration, maxMissed int) *heartbeat {
	return &heartbeat{
		conn:      conn,
		interval:  interval,
		maxMissed: maxMissed,
		stopC:     make(chan struct{}),
	}
}

func (h *heartbeat) start() {
	go h.run()
}

func (h *heartbeat) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopC:
			return
		case <-ticker.C:
			h.mu.Lock()
			seq := h.next
			h.next++
			outstanding := h.next - h.lastAck
			h.mu.Unlock()

			h.conn.Send(systemMessage{System: true, Type: "serverPing", Seq: seq})
			if outstanding > h.maxMissed {
				h.conn.Close(websocket.StatusNormalClosure, "heartbeat timeout")
				return
			}
		}
	}
}

// ack records a reply. Only pings that were sent and are newer than the last reply count.
func (h *heartbeat) ack(seq int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq <= h.lastAck || seq >= h.next {
		return false
	}
	h.lastAck = seq
	return true
}

func (h *heartbeat) stop() {
	h.stopOnce.Do(func() { close(h.stopC) })
}
