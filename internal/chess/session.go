// Package chess is the Entertaining Chess application. The server only pairs
// players by code; once linked, everything else is relayed between the two peers.
package chess

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/models"
	"github.com/vicr123/entertaining-server/internal/play"
)

const (
	Name        = "EntertainingChess"
	DisplayName = "Entertaining Chess"
)

type State int

const (
	StateIdle State = iota
	StateMatchmaking
	StateLinked
)

// Session is one connected chess player. Two linked sessions are always locked in
// id order, and a session lock is taken before the directory lock.
type Session struct {
	id     string
	ident  models.Identity
	conn   play.Conn
	dir    *Directory
	logger *logrus.Entry

	mu     sync.Mutex
	state  State
	code   string
	peer   *Session
	closed bool
}

// NewFactory builds sessions for the gateway.
func NewFactory(dir *Directory, logger *logrus.Logger) play.Factory {
	return func(conn play.Conn, ident models.Identity) play.Application {
		return NewSession(conn, ident, dir, logger)
	}
}

func NewSession(conn play.Conn, ident models.Identity, dir *Directory, logger *logrus.Logger) *Session {
	s := &Session{
		id:    uuid.NewString(),
		ident: ident,
		conn:  conn,
		dir:   dir,
	}
	s.logger = logger.WithFields(logrus.Fields{"user_id": ident.UserID, "session": s.id})
	conn.Send(sessionIDMsg{Type: "sessionIdChanged", Session: s.id})
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peer returns the linked session, if any.
func (s *Session) Peer() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func lockPair(a, b *Session) func() {
	if b.id < a.id {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		a.mu.Unlock()
	}
}

func protocolErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", play.ErrProtocol, fmt.Sprintf(format, args...))
}

func (s *Session) HandleMessage(_ context.Context, msg []byte) error {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return protocolErr("malformed message: %v", err)
	}

	switch env.Type {
	case "launchPrivate":
		var req launchPrivateRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocolErr("malformed launchPrivate: %v", err)
		}
		return s.launchPrivate(req.PlayerIsWhite)

	case "joinPrivate":
		var req joinPrivateRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocolErr("malformed joinPrivate: %v", err)
		}
		return s.joinPrivate(req.Code)

	case "cancelMatchmaking":
		s.cancelMatchmaking()
		return nil

	case "disconnectPeer":
		s.disconnectPeer(true)
		return nil
	}

	peer := s.Peer()
	if peer == nil {
		s.logger.Debugf("dropping %q while not linked", env.Type)
		return nil
	}
	peer.conn.SendRaw(msg)
	return nil
}

func (s *Session) launchPrivate(playerIsWhite bool) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return protocolErr("launchPrivate while not idle")
	}
	code, err := s.dir.StartPrivate(s)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to start matchmaking: %w", err)
	}
	s.state = StateMatchmaking
	s.code = code
	s.mu.Unlock()

	s.conn.Send(matchmakingStartedMsg{Type: "matchmakingStarted", Code: code, PlayerIsWhite: playerIsWhite})
	s.logger.Debugf("waiting on code %s", code)
	return nil
}

func (s *Session) joinPrivate(code string) error {
	if s.State() != StateIdle {
		return protocolErr("joinPrivate while not idle")
	}

	other := s.dir.TakeMatch(code)
	if other == nil || other == s {
		s.conn.Send(typeMsg{Type: "peerConnectionError"})
		return nil
	}

	unlock := lockPair(s, other)
	if other.closed || other.state != StateMatchmaking {
		unlock()
		s.conn.Send(typeMsg{Type: "peerConnectionError"})
		return nil
	}
	s.peer, other.peer = other, s
	s.state, other.state = StateLinked, StateLinked
	other.code = ""
	unlock()

	other.conn.Send(peerConnectedMsg{Type: "peerConnected", Username: s.ident.Username, Picture: s.ident.Picture})
	s.conn.Send(peerConnectedMsg{Type: "peerConnected", Username: other.ident.Username, Picture: other.ident.Picture})
	s.logger.Infof("linked with %s", other.ident.Username)
	return nil
}

func (s *Session) cancelMatchmaking() {
	s.disconnectPeer(true)

	s.mu.Lock()
	if s.code != "" {
		s.dir.Release(s.code, s)
		s.code = ""
	}
	if s.state == StateMatchmaking {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.conn.Send(typeMsg{Type: "matchmakingCancelled"})
}

// disconnectPeer unlinks s from its peer and tells the peer. notifySelf is false
// when s is going away. Without a peer it does nothing.
func (s *Session) disconnectPeer(notifySelf bool) {
	peer := s.Peer()
	if peer == nil {
		return
	}

	unlock := lockPair(s, peer)
	if s.peer != peer {
		// the peer got there first
		unlock()
		return
	}
	s.peer, peer.peer = nil, nil
	s.state, peer.state = StateIdle, StateIdle
	unlock()

	peer.conn.Send(typeMsg{Type: "peerDisconnected"})
	if notifySelf {
		s.conn.Send(typeMsg{Type: "peerDisconnected"})
	}
}

// Close releases a pending code or unlinks the peer.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.code != "" {
		s.dir.Release(s.code, s)
		s.code = ""
	}
	s.mu.Unlock()

	s.disconnectPeer(false)
	s.logger.Debug("chess session closed")
}
