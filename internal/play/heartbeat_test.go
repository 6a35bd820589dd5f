package play

import (
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vicr123/entertaining-server/internal/play/playtest"
)

func TestHeartbeat_ClosesAfterMissedPings(t *testing.T) {
	conn := playtest.NewConn()
	hb := newHeartbeat(conn, 5*time.Millisecond, 4)
	hb.start()
	defer hb.stop()

	require.Eventually(t, func() bool {
		_, closed := conn.Closed()
		return closed
	}, 2*time.Second, 5*time.Millisecond)

	code, _ := conn.Closed()
	assert.Equal(t, websocket.StatusNormalClosure, code)

	pings := conn.OfType("serverPing")
	require.Len(t, pings, 5, "closes on the ping that leaves more than 4 outstanding")
	for i, p := range pings {
		assert.Equal(t, true, p["system"])
		assert.EqualValues(t, i, p["seq"])
	}
}

func TestHeartbeat_AcksKeepConnectionAlive(t *testing.T) {
	conn := playtest.NewConn()
	hb := newHeartbeat(conn, 20*time.Millisecond, 4)
	hb.start()

	// acknowledge every ping we see for a while
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if p := conn.Last("serverPing"); p != nil {
			hb.ack(int(p["seq"].(float64)))
		}
		time.Sleep(time.Millisecond)
	}
	hb.stop()

	_, closed := conn.Closed()
	assert.False(t, closed)
	assert.Greater(t, len(conn.OfType("serverPing")), 5)
}

func TestHeartbeat_IgnoresAcksOutOfRange(t *testing.T) {
	conn := playtest.NewConn()
	hb := newHeartbeat(conn, time.Hour, 4)
	hb.next = 5

	assert.False(t, hb.ack(1000000), "never sent")
	assert.False(t, hb.ack(5), "not sent yet")
	assert.True(t, hb.ack(3))
	assert.False(t, hb.ack(2), "older than the last reply")
	assert.False(t, hb.ack(3), "repeated")
	assert.Equal(t, 3, hb.lastAck)
	assert.True(t, hb.ack(4))
	assert.Equal(t, 4, hb.lastAck)
}
