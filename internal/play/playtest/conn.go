// Package playtest provides an in-memory play.Conn for application tests.
package playtest

import (
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
)

// Conn records everything sent to it.
type Conn struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
	code     websocket.StatusCode
	reason   string
}

func NewConn() *Conn {
	return &Conn{}
}

func (c *Conn) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	c.SendRaw(data)
}

func (c *Conn) SendRaw(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.messages = append(c.messages, append([]byte(nil), data...))
}

func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.code = code
	c.reason = reason
}

// Closed returns the close code, or false if the connection is open.
func (c *Conn) Closed() (websocket.StatusCode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.closed
}

// Raw returns a copy of every message sent so far.
func (c *Conn) Raw() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.messages))
	copy(out, c.messages)
	return out
}

// Messages decodes every message sent so far.
func (c *Conn) Messages() []map[string]any {
	raw := c.Raw()
	out := make([]map[string]any, 0, len(raw))
	for _, data := range raw {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// OfType returns the decoded messages whose "type" is typ.
func (c *Conn) OfType(typ string) []map[string]any {
	var out []map[string]any
	for _, m := range c.Messages() {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent message of type typ, or nil.
func (c *Conn) Last(typ string) map[string]any {
	msgs := c.OfType(typ)
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// Reset forgets recorded messages.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
