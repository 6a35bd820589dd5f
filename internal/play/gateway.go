package play

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/auth"
	"github.com/vicr123/entertaining-server/internal/models"
)

// FriendRequests is the slice of the friend service the gateway needs after handoff.
type FriendRequests interface {
	HasPendingFriendRequests(ctx context.Context, userID int64) (bool, error)
}

type Options struct {
	PingInterval     time.Duration
	MaxMissedPings   int
	HandshakeTimeout time.Duration
	SendBuffer       int
}

// Gateway owns every connection from accept until close.
type Gateway struct {
	resolver auth.Resolver
	requests FriendRequests
	apps     *Registry
	presence *Presence
	opts     Options
	logger   *logrus.Logger

	mu       sync.Mutex
	clients  map[*Client]struct{}
	draining bool
	wg       sync.WaitGroup
}

// NewGateway wires a gateway. requests may be nil.
func NewGateway(resolver auth.Resolver, requests FriendRequests, apps *Registry, presence *Presence, opts Options, logger *logrus.Logger) *Gateway {
	return &Gateway{
		resolver: resolver,
		requests: requests,
		apps:     apps,
		presence: presence,
		opts:     opts,
		logger:   logger,
		clients:  make(map[*Client]struct{}),
	}
}

func (g *Gateway) Presence() *Presence {
	return g.presence
}

// Beam pushes payload to userID's open sessions.
func (g *Gateway) Beam(userID int64, payload json.RawMessage) int {
	return g.presence.Beam(userID, payload)
}

func (g *Gateway) OnlineState(userID int64) (OnlineState, bool) {
	return g.presence.OnlineState(userID)
}

// Serve runs one accepted connection to completion.
func (g *Gateway) Serve(ctx context.Context, ws *websocket.Conn, remote string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := g.logger.WithField("remote", remote)
	client := NewClient(ws, g.opts.SendBuffer, logger)
	go client.writePump(ctx)

	if !g.track(client) {
		client.Close(websocket.StatusGoingAway, "server shutting down")
		<-client.done
		return
	}
	defer g.untrack(client)

	defer func() {
		client.Close(websocket.StatusNormalClosure, "")
		<-client.done
	}()

	handshakeTimer := time.AfterFunc(g.opts.HandshakeTimeout, func() {
		logger.Debug("handshake timed out")
		client.Close(websocket.StatusProtocolError, "handshake timeout")
	})

	_, msg, err := ws.Read(ctx)
	if !handshakeTimer.Stop() || err != nil {
		if err != nil {
			logReadError(logger, err)
		}
		return
	}

	s := g.handshake(ctx, client, logger, msg)
	if s == nil {
		return
	}
	defer s.close()

	// a close started by the server tears the session down now, not after the
	// close handshake finishes
	go func() {
		select {
		case <-client.Closing():
			s.close()
		case <-ctx.Done():
		}
	}()

	for {
		typ, msg, err := ws.Read(ctx)
		if err != nil {
			logReadError(s.logger, err)
			return
		}
		if typ != websocket.MessageText {
			s.logger.Warnf("ignoring non-text message type %d", typ)
			continue
		}
		s.handle(ctx, msg)
	}
}

// Shutdown closes every connection with 1001 and waits for them to finish.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.draining = true
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	g.logger.Infof("closing %d connections", len(clients))
	for _, c := range clients {
		c.Close(websocket.StatusGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) track(c *Client) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return false
	}
	g.clients[c] = struct{}{}
	g.wg.Add(1)
	return true
}

func (g *Gateway) untrack(c *Client) {
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
	g.wg.Done()
}

// handshake validates the first message and hands the connection off. It returns nil
// after closing the connection if anything is wrong.
func (g *Gateway) handshake(ctx context.Context, client *Client, logger *logrus.Entry, msg []byte) *session {
	var req handshakeRequest
	if err := json.Unmarshal(msg, &req); err != nil || req.Token == "" || req.Application == "" || req.Version == "" {
		logger.Debug("handshake with missing fields")
		client.Close(websocket.StatusProtocolError, "bad handshake")
		return nil
	}

	ident, err := g.resolver.ResolveToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			logger.Info("handshake with incorrect credentials")
			client.Close(CloseAuthenticationError, "authentication failed")
		} else {
			logger.Errorf("token lookup failed: %v", err)
			client.Close(websocket.StatusInternalError, "internal error")
		}
		return nil
	}
	logger = logger.WithFields(logrus.Fields{
		"user_id":     ident.UserID,
		"application": req.Application,
	})

	module, factory, err := g.apps.Lookup(req.Application, req.Version)
	switch {
	case errors.Is(err, ErrBadVersion):
		logger.Infof("unsupported version %s", req.Version)
		client.Close(CloseBadVersion, "unsupported version")
		return nil
	case err != nil:
		logger.Info("unknown application")
		client.Close(CloseUnknownApplication, "unknown application")
		return nil
	}

	client.Send(handshakeReply{Status: "OK", Upgrade: req.Application, PlayingAs: ident.Username})
	logger.Infof("handing %s (%d) over to %s@%s", ident.Username, ident.UserID, module.Name, req.Version)

	s := &session{
		conn:  client,
		ident: ident,
		app:   factory(client, ident),
		entry: &PresenceEntry{
			UserID:                 ident.UserID,
			Conn:                   client,
			Application:            req.Application,
			ApplicationDisplayName: module.DisplayName,
		},
		presence: g.presence,
		hb:       newHeartbeat(client, g.opts.PingInterval, g.opts.MaxMissedPings),
		logger:   logger,
	}
	g.presence.Add(s.entry)
	go g.sendEvents(ctx, client, ident, logger)
	s.hb.start()
	return s
}

// sendEvents tells a new session about things that happened while it was away.
func (g *Gateway) sendEvents(ctx context.Context, conn Conn, ident models.Identity, logger *logrus.Entry) {
	if g.requests == nil {
		return
	}
	pending, err := g.requests.HasPendingFriendRequests(ctx, ident.UserID)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf("failed to check friend requests: %v", err)
		}
		return
	}
	if pending {
		conn.Send(systemMessage{System: true, Type: "notifyNewFriendRequests"})
	}
}

// session is a handed-off connection.
type session struct {
	conn     Conn
	ident    models.Identity
	app      Application
	entry    *PresenceEntry
	presence *Presence
	hb       *heartbeat
	logger   *logrus.Entry

	// mu keeps teardown from running in the middle of a message.
	mu     sync.Mutex
	closed bool
}

func (s *session) handle(ctx context.Context, msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	var env systemEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		s.logger.Warnf("invalid json: %v", err)
		s.conn.Close(websocket.StatusProtocolError, "invalid json")
		return
	}

	if env.System {
		switch env.Type {
		case "clientPing":
			s.conn.Send(systemMessage{System: true, Type: "clientPingReply", Seq: env.Seq})
		case "serverPingReply":
			seq, err := strconv.Atoi(string(env.Seq))
			if err != nil {
				s.logger.Debugf("bad serverPingReply seq %q", env.Seq)
				return
			}
			if !s.hb.ack(seq) {
				s.logger.Debugf("ignoring serverPingReply for seq %d", seq)
			}
		default:
			s.logger.Debugf("ignoring system message %q", env.Type)
		}
		return
	}

	if err := s.app.HandleMessage(ctx, msg); err != nil {
		if errors.Is(err, ErrProtocol) {
			s.logger.Warnf("closing on protocol error: %v", err)
			s.conn.Close(websocket.StatusProtocolError, "protocol error")
			return
		}
		s.logger.Errorf("application error: %v", err)
		s.conn.Close(websocket.StatusInternalError, "internal error")
	}
}

// close runs the teardown in order: presence first so nothing beams to a dead
// connection, then the heartbeat, then the application.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.presence.Remove(s.entry)
	s.hb.stop()
	s.app.Close()
	s.logger.Infof("%s disconnected", s.ident.Username)
}

func logReadError(logger *logrus.Entry, err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		logger.Debug("connection closed normally")
	case -1:
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Debugf("read error: %v", err)
	default:
		logger.Debugf("connection closed: %v", err)
	}
}
