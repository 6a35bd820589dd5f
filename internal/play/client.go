package play

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

type closeRequest struct {
	code   websocket.StatusCode
	reason string
	// flush writes everything queued before the close frame.
	flush bool
}

// Client wraps a websocket with a buffered outbound queue drained by writePump, so a
// single destination always sees messages in the order they were sent.
type Client struct {
	ws     *websocket.Conn
	out    chan []byte
	closeC chan closeRequest
	done   chan struct{}
	logger *logrus.Entry

	// closing is closed as soon as the connection stops accepting messages.
	closing chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewClient(ws *websocket.Conn, buffer int, logger *logrus.Entry) *Client {
	return &Client{
		ws:      ws,
		out:     make(chan []byte, buffer),
		closeC:  make(chan closeRequest, 1),
		done:    make(chan struct{}),
		logger:  logger,
		closing: make(chan struct{}),
	}
}

func (c *Client) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Errorf("failed to marshal outgoing message: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw queues data. A client whose queue is full is closed with 1011.
func (c *Client) SendRaw(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Debug("dropping message for closed connection")
		return
	}
	select {
	case c.out <- data:
	default:
		c.logger.Warn("outbound queue full, closing slow connection")
		c.closeLocked(closeRequest{code: websocket.StatusInternalError, reason: "send queue full"})
	}
}

func (c *Client) Close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(closeRequest{code: code, reason: reason, flush: true})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Closing is closed once Close has been called or a write has failed.
func (c *Client) Closing() <-chan struct{} {
	return c.closing
}

func (c *Client) closeLocked(req closeRequest) {
	if c.closed {
		return
	}
	c.markClosedLocked()
	c.closeC <- req
}

func (c *Client) markClosedLocked() {
	if !c.closed {
		c.closed = true
		close(c.closing)
	}
}

// writePump runs until a close frame is written, a write fails or ctx is cancelled.
func (c *Client) writePump(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.CloseNow()
			return

		case data := <-c.out:
			if !c.write(ctx, data) {
				return
			}

		case req := <-c.closeC:
			if req.flush {
				c.drain(ctx)
			}
			if err := c.ws.Close(req.code, req.reason); err != nil {
				c.logger.Debugf("close handshake: %v", err)
			}
			return
		}
	}
}

// drain writes whatever is still queued without blocking for more.
func (c *Client) drain(ctx context.Context) {
	for {
		select {
		case data := <-c.out:
			if !c.write(ctx, data) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(ctx context.Context, data []byte) bool {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := c.ws.Write(writeCtx, websocket.MessageText, data)
	cancel()
	if err != nil {
		c.logger.Warnf("write error: %v", err)
		c.mu.Lock()
		c.markClosedLocked()
		c.mu.Unlock()
		_ = c.ws.CloseNow()
		return false
	}
	return true
}
