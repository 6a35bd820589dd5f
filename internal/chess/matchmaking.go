package chess

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// ErrNoCode means every code tried was already pending.
var ErrNoCode = errors.New("no free matchmaking code")

const codeTries = 100

// Directory holds sessions waiting for a private opponent, keyed by a six digit code.
type Directory struct {
	// next picks a candidate code in [0, 1000000).
	next func() int

	mu      sync.Mutex
	pending map[string]*Session
}

func NewDirectory() *Directory {
	return &Directory{
		next:    func() int { return rand.IntN(1_000_000) },
		pending: make(map[string]*Session),
	}
}

// StartPrivate registers s under a fresh code.
func (d *Directory) StartPrivate(s *Session) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 0; i < codeTries; i++ {
		code := fmt.Sprintf("%06d", d.next())
		if _, taken := d.pending[code]; taken {
			continue
		}
		d.pending[code] = s
		return code, nil
	}
	return "", ErrNoCode
}

// TakeMatch removes and returns the session waiting on code, or nil.
// Only one caller can take a given code.
func (d *Directory) TakeMatch(code string) *Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.pending[code]
	if !ok {
		return nil
	}
	delete(d.pending, code)
	return s
}

// Release drops code if s is the session waiting on it.
func (d *Directory) Release(code string, s *Session) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending[code] != s {
		return false
	}
	delete(d.pending, code)
	return true
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
