package generation

import (
	"sync"
	"time"

	"imagine/internal/domain"
)

// Factory builds the controller for a new session owned by ownerID.
type Factory func(ownerID string) *Controller

// Registry keeps one Controller per session. Idle sessions are dropped after
// idleTTL.
type Registry struct {
	factory Factory
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*session
	closed   bool
}

type sessionKey struct {
	id    string
	owner string
}

type session struct {
	ctrl     *Controller
	lastSeen time.Time
}

// NewRegistry creates an empty registry. A non-positive idleTTL keeps
// sessions until Close.
func NewRegistry(factory Factory, idleTTL time.Duration) *Registry {
	return &Registry{
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
		sessions: make(map[sessionKey]*session),
	}
}

// Controller returns the controller for the session, creating it on first use.
func (r *Registry) Controller(sessionID, ownerID string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrClosed
	}
	now := r.now()
	r.sweepLocked(now)
	key := sessionKey{id: sessionID, owner: ownerID}
	s, ok := r.sessions[key]
	if !ok {
		s = &session{ctrl: r.factory(ownerID)}
		r.sessions[key] = s
	}
	s.lastSeen = now
	return s.ctrl, nil
}

// Lookup returns the controller of an existing session.
func (r *Registry) Lookup(sessionID, ownerID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey{id: sessionID, owner: ownerID}]
	if !ok {
		return nil, false
	}
	s.lastSeen = r.now()
	return s.ctrl, true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close cancels every active job and rejects new sessions.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[sessionKey]*session)
	r.closed = true
	r.mu.Unlock()
	for _, s := range sessions {
		s.ctrl.Close()
	}
}

func (r *Registry) sweepLocked(now time.Time) {
	if r.idleTTL <= 0 {
		return
	}
	for key, s := range r.sessions {
		if now.Sub(s.lastSeen) < r.idleTTL || s.ctrl.Snapshot().Loading() {
			continue
		}
		s.ctrl.Close()
		delete(r.sessions, key)
	}
}
