// Package play is the connection gateway: it authenticates a socket, hands it to a versioned
// application module and keeps it alive with a heartbeat while tracking who is online.
package play

import (
	"context"
	"errors"

	"github.com/coder/websocket"
	"github.com/vicr123/entertaining-server/internal/models"
)

var (
	// ErrProtocol marks client input that breaks the application's state machine.
	// The gateway closes the connection with 1002 when a handler returns it.
	ErrProtocol = errors.New("protocol error")

	ErrUnknownApplication = errors.New("unknown application")
	ErrBadVersion         = errors.New("unsupported version")
)

// Conn is the outbound half of a connection as seen by applications.
type Conn interface {
	// Send marshals v to JSON and queues it. It never blocks.
	Send(v any)
	// SendRaw queues an already encoded message.
	SendRaw(data []byte)
	// Close queues a close frame behind everything already sent.
	Close(code websocket.StatusCode, reason string)
}

// Application owns a connection once the handshake completes.
type Application interface {
	// HandleMessage receives every non-system message verbatim.
	HandleMessage(ctx context.Context, msg []byte) error
	// Close is called once, after the connection has gone away.
	Close()
}

// Factory instantiates an application for a freshly handed-off connection.
type Factory func(conn Conn, ident models.Identity) Application
