package play

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vicr123/entertaining-server/internal/auth"
	"github.com/vicr123/entertaining-server/internal/models"
)

// echoApp replies to {"type":"echo"} and fails on {"type":"bad"} or {"type":"crash"}.
type echoApp struct {
	conn   Conn
	closed chan struct{}
}

func (a *echoApp) HandleMessage(_ context.Context, msg []byte) error {
	var m struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	switch m.Type {
	case "echo":
		a.conn.SendRaw(msg)
		return nil
	case "bad":
		return fmt.Errorf("%w: bad message", ErrProtocol)
	case "crash":
		return errors.New("boom")
	}
	return nil
}

func (a *echoApp) Close() { close(a.closed) }

type fakeRequests struct{ pending map[int64]bool }

func (f fakeRequests) HasPendingFriendRequests(_ context.Context, userID int64) (bool, error) {
	return f.pending[userID], nil
}

type testGateway struct {
	*Gateway
	url  string
	apps chan *echoApp
}

func newTestGateway(t *testing.T, opts Options) *testGateway {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	resolver := auth.ResolverFunc(func(_ context.Context, token string) (models.Identity, error) {
		switch token {
		case "T":
			return models.Identity{UserID: 42, Username: "alice"}, nil
		case "U":
			return models.Identity{UserID: 7, Username: "bob"}, nil
		case "broken":
			return models.Identity{}, errors.New("db down")
		}
		return models.Identity{}, auth.ErrInvalidToken
	})

	tg := &testGateway{apps: make(chan *echoApp, 8)}
	reg := NewRegistry()
	require.NoError(t, reg.Register(Module{
		Name:        "EntertainingEcho",
		DisplayName: "Entertaining Echo",
		Versions: map[string]Factory{"1.0": func(conn Conn, _ models.Identity) Application {
			a := &echoApp{conn: conn, closed: make(chan struct{})}
			tg.apps <- a
			return a
		}},
	}))
	require.NoError(t, reg.Alias("echo", "EntertainingEcho"))

	if opts.PingInterval == 0 {
		opts.PingInterval = time.Hour
	}
	if opts.MaxMissedPings == 0 {
		opts.MaxMissedPings = 4
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.SendBuffer == 0 {
		opts.SendBuffer = 64
	}

	tg.Gateway = NewGateway(resolver, fakeRequests{pending: map[int64]bool{42: true}}, reg, NewPresence(), opts, logger)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		tg.Serve(r.Context(), c, r.RemoteAddr)
	}))
	t.Cleanup(srv.Close)
	tg.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return tg
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func writeJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// readUntil skips messages until one has the given type.
func readUntil(t *testing.T, c *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		m := readJSON(t, c)
		if m["type"] == typ {
			return m
		}
	}
}

// closeCode reads until the server closes the connection and returns the code.
func closeCode(t *testing.T, c *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, _, err := c.Read(ctx)
		if err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func TestGateway_HandshakeOK(t *testing.T) {
	tg := newTestGateway(t, Options{})
	c := dial(t, tg.url)

	writeJSON(t, c, map[string]string{"token": "T", "application": "echo", "version": "1.0"})
	reply := readJSON(t, c)
	assert.Equal(t, map[string]any{"status": "OK", "upgrade": "echo", "playingAs": "alice"}, reply)

	notify := readJSON(t, c)
	assert.Equal(t, map[string]any{"system": true, "type": "notifyNewFriendRequests"}, notify)

	state, online := tg.OnlineState(42)
	require.True(t, online)
	assert.Equal(t, "echo", state.Application)
	assert.Equal(t, "Entertaining Echo", state.ApplicationDisplayName)

	writeJSON(t, c, map[string]any{"type": "echo", "n": 1})
	assert.Equal(t, map[string]any{"type": "echo", "n": float64(1)}, readJSON(t, c))

	writeJSON(t, c, map[string]any{"system": true, "type": "clientPing", "seq": 17})
	assert.Equal(t, map[string]any{"system": true, "type": "clientPingReply", "seq": float64(17)}, readJSON(t, c))

	n := tg.Beam(42, json.RawMessage(`{"type":"beamed"}`))
	assert.Equal(t, 1, n)
	assert.Equal(t, "beamed", readJSON(t, c)["type"])

	app := <-tg.apps
	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	select {
	case <-app.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("application was not closed")
	}
	_, online = tg.OnlineState(42)
	assert.False(t, online, "presence is removed before the application closes")
}

func TestGateway_HandshakeFailures(t *testing.T) {
	tests := []struct {
		name      string
		handshake any
		want      websocket.StatusCode
	}{
		{"not json", "hello", websocket.StatusProtocolError},
		{"missing version", map[string]string{"token": "T", "application": "echo"}, websocket.StatusProtocolError},
		{"wrong field type", map[string]any{"token": 5, "application": "echo", "version": "1.0"}, websocket.StatusProtocolError},
		{"bad token", map[string]string{"token": "nope", "application": "echo", "version": "1.0"}, CloseAuthenticationError},
		{"traversal", map[string]string{"token": "T", "application": "../echo", "version": "1.0"}, CloseUnknownApplication},
		{"unknown app", map[string]string{"token": "T", "application": "golf", "version": "1.0"}, CloseUnknownApplication},
		{"unknown version", map[string]string{"token": "T", "application": "echo", "version": "9.9"}, CloseBadVersion},
		{"resolver failure", map[string]string{"token": "broken", "application": "echo", "version": "1.0"}, websocket.StatusInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := newTestGateway(t, Options{})
			c := dial(t, tg.url)
			if s, ok := tt.handshake.(string); ok {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(s)))
				cancel()
			} else {
				writeJSON(t, c, tt.handshake)
			}
			assert.Equal(t, tt.want, closeCode(t, c))
			assert.Equal(t, 0, tg.Presence().Count())
			assert.Empty(t, tg.apps, "no application is created")
		})
	}
}

func TestGateway_HandshakeTimeout(t *testing.T) {
	tg := newTestGateway(t, Options{HandshakeTimeout: 50 * time.Millisecond})
	c := dial(t, tg.url)
	assert.Equal(t, websocket.StatusProtocolError, closeCode(t, c))
}

func TestGateway_ApplicationErrors(t *testing.T) {
	for typ, want := range map[string]websocket.StatusCode{
		"bad":   websocket.StatusProtocolError,
		"crash": websocket.StatusInternalError,
	} {
		t.Run(typ, func(t *testing.T) {
			tg := newTestGateway(t, Options{})
			c := dial(t, tg.url)
			writeJSON(t, c, map[string]string{"token": "U", "application": "EntertainingEcho", "version": "1.0"})
			require.Equal(t, "OK", readJSON(t, c)["status"])

			writeJSON(t, c, map[string]string{"type": typ})
			assert.Equal(t, want, closeCode(t, c))
		})
	}
}

func TestGateway_ServerCloseTearsDownAtOnce(t *testing.T) {
	tg := newTestGateway(t, Options{})
	c := dial(t, tg.url)
	writeJSON(t, c, map[string]string{"token": "U", "application": "echo", "version": "1.0"})
	require.Equal(t, "OK", readJSON(t, c)["status"])
	app := <-tg.apps

	// the client stops reading, so the close handshake cannot complete
	writeJSON(t, c, map[string]string{"type": "bad"})
	select {
	case <-app.closed:
	case <-time.After(time.Second):
		t.Fatal("application was not closed")
	}
	_, online := tg.OnlineState(7)
	assert.False(t, online)
}

func TestGateway_HeartbeatTimeout(t *testing.T) {
	tg := newTestGateway(t, Options{PingInterval: 10 * time.Millisecond, MaxMissedPings: 2})
	c := dial(t, tg.url)
	writeJSON(t, c, map[string]string{"token": "U", "application": "echo", "version": "1.0"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pings := 0
	var err error
	for {
		var data []byte
		_, data, err = c.Read(ctx)
		if err != nil {
			break
		}
		if strings.Contains(string(data), "serverPing") {
			pings++
		}
	}
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	assert.Equal(t, 3, pings)
}

func TestGateway_HeartbeatReplies(t *testing.T) {
	tg := newTestGateway(t, Options{PingInterval: 20 * time.Millisecond, MaxMissedPings: 2})
	c := dial(t, tg.url)
	writeJSON(t, c, map[string]string{"token": "U", "application": "echo", "version": "1.0"})
	require.Equal(t, "OK", readJSON(t, c)["status"])

	for i := 0; i < 6; i++ {
		ping := readUntil(t, c, "serverPing")
		writeJSON(t, c, map[string]any{"system": true, "type": "serverPingReply", "seq": ping["seq"]})
	}

	// a reply for a ping that was never sent does not hold the connection open
	writeJSON(t, c, map[string]any{"system": true, "type": "serverPingReply", "seq": 1000000})

	writeJSON(t, c, map[string]any{"type": "echo"})
	assert.Equal(t, "echo", readUntil(t, c, "echo")["type"], "still connected")
	assert.Equal(t, websocket.StatusNormalClosure, closeCode(t, c), "heartbeat still times out")
}

func TestGateway_Shutdown(t *testing.T) {
	tg := newTestGateway(t, Options{})

	var conns []*websocket.Conn
	for _, token := range []string{"T", "U"} {
		c := dial(t, tg.url)
		writeJSON(t, c, map[string]string{"token": token, "application": "echo", "version": "1.0"})
		require.Equal(t, "OK", readJSON(t, c)["status"])
		conns = append(conns, c)
	}

	var wg sync.WaitGroup
	codes := make([]websocket.StatusCode, len(conns))
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c *websocket.Conn) {
			defer wg.Done()
			codes[i] = closeCode(t, c)
		}(i, c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tg.Shutdown(ctx))
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, websocket.StatusGoingAway, code)
	}
	assert.Equal(t, 0, tg.Presence().Count())

	// new connections are turned away
	c := dial(t, tg.url)
	assert.Equal(t, websocket.StatusGoingAway, closeCode(t, c))
}
