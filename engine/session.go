package engine

import (
	"context"
	"sync"
)

// session is one client session: a context for cancellation plus the
// deferred-error slot queried through Dispatcher.SessionError.
type session struct {
	id     int64
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	lastErr error
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *session) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// sessionRegistry hands out int64 session ids. Sessions must be closed
// explicitly; a closed id no longer resolves.
type sessionRegistry struct {
	mu     sync.Mutex
	lastID int64
	byID   map[int64]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{byID: make(map[int64]*session)}
}

func (r *sessionRegistry) create() int64 {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.lastID++
	id := r.lastID
	r.byID[id] = &session{id: id, ctx: ctx, cancel: cancel}
	r.mu.Unlock()
	return id
}

func (r *sessionRegistry) get(id int64) (*session, bool) {
	r.mu.Lock()
	s, ok := r.byID[id]
	r.mu.Unlock()
	return s, ok
}

// remove unregisters and releases a session. The backing context is
// cancelled either way; remove differs from cancel only in intent (orderly
// close vs. aborting in-flight work).
func (r *sessionRegistry) remove(id int64) {
	r.cancel(id)
}

func (r *sessionRegistry) cancel(id int64) {
	r.mu.Lock()
	s, ok := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()
	if ok {
		s.cancel()
	}
}
