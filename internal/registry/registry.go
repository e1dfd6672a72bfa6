// Package registry tracks connected viewers. It is the single source of
// truth for "is anyone listening": a token exists from session reservation
// until explicit deletion or socket close, and carries at most one live
// outbound channel.
package registry

import (
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"arrowctl/internal/protocol"
)

// ErrUnknownToken is returned by Attach when no reservation exists for the
// token; callers must reject the upgrade.
var ErrUnknownToken = errors.New("unknown session token")

// outboundBuffer is the per-session queue depth. Deliveries use
// non-blocking sends, so a viewer that stops draining loses messages
// instead of stalling everyone else.
const outboundBuffer = 256

// Conn is one live outbound channel. Out is never closed; Done is closed
// when the connection is superseded or detached, and is the only exit
// signal a send loop needs.
type Conn struct {
	Out  chan protocol.Envelope
	Done chan struct{}
}

// Send queues one envelope without blocking. It reports false when the
// connection is gone or its buffer is full; a failed send to one viewer is
// that viewer's problem alone.
func (c *Conn) Send(env protocol.Envelope) bool {
	select {
	case <-c.Done:
		return false
	default:
	}
	select {
	case c.Out <- env:
		return true
	default:
		return false
	}
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Conn // nil Conn while reserved but not attached
}

func New() *Registry {
	return &Registry{sessions: map[string]*Conn{}}
}

// Reserve creates a fresh unguessable token with no channel attached and
// inserts it.
func (r *Registry) Reserve() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		u := uuid.New()
		token := hex.EncodeToString(u[:])
		if _, taken := r.sessions[token]; taken {
			continue
		}
		r.sessions[token] = nil
		return token
	}
}

// Attach installs the outbound channel for a reserved token. A second
// attach for the same token wins: the superseded connection is signalled
// so its send loop exits, and the stale socket is reaped by its own
// disconnect handling.
func (r *Registry) Attach(token string) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.sessions[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	if prev != nil {
		close(prev.Done)
	}
	conn := &Conn{
		Out:  make(chan protocol.Envelope, outboundBuffer),
		Done: make(chan struct{}),
	}
	r.sessions[token] = conn
	return conn, nil
}

// Detach removes the token unconditionally. Idempotent.
func (r *Registry) Detach(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.sessions[token]; ok {
		if conn != nil {
			close(conn.Done)
		}
		delete(r.sessions, token)
	}
}

// DetachOwned removes the token only if conn is still its registered
// connection. A socket superseded by a later upgrade calls this on
// disconnect and must not tear down its successor.
func (r *Registry) DetachOwned(token string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[token]
	if !ok || cur != conn {
		return
	}
	close(cur.Done)
	delete(r.sessions, token)
}

// Live returns a snapshot of every attached connection. The snapshot is
// taken under the read lock; broadcasters iterate it without holding the
// lock, so attach/detach never wait on a slow fan-out.
func (r *Registry) Live() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	live := make([]*Conn, 0, len(r.sessions))
	for _, conn := range r.sessions {
		if conn != nil {
			live = append(live, conn)
		}
	}
	return live
}

// Known reports whether a token is reserved, attached or not.
func (r *Registry) Known(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[token]
	return ok
}

// Count returns the number of reserved tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
