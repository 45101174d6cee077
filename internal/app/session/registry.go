package session

import (
	"slices"
	"sync"

	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// DefaultRetainClosed is how many closed sessions stay readable by default.
const DefaultRetainClosed = 256

// closedSession is what remains of a session after it reached a terminal
// status and released its runtime.
type closedSession struct {
	session   domain.Session
	recording *domain.RecordingArtifact
}

// Registry maps session ids to their session-scoped state. Closed sessions
// keep their final snapshot until retain newer ones push them out.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionState
	closed   map[domain.SessionID]closedSession
	order    []domain.SessionID
	retain   int
}

func NewRegistry(retain int) *Registry {
	if retain <= 0 {
		retain = DefaultRetainClosed
	}
	return &Registry{
		sessions: make(map[domain.SessionID]*sessionState),
		closed:   make(map[domain.SessionID]closedSession),
		retain:   retain,
	}
}

// Add registers st unless its id is taken, live or closed.
func (r *Registry) Add(st *sessionState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[st.id]; ok {
		return false
	}
	if _, ok := r.closed[st.id]; ok {
		return false
	}
	r.sessions[st.id] = st
	log.Info().Str("module", "app.registry").Str("session", string(st.id)).Msg("registered session")
	return true
}

func (r *Registry) Get(id domain.SessionID) (*sessionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.sessions[id]
	return st, ok
}

func (r *Registry) Remove(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("session", string(id)).Msg("removed session")
}

// Retire swaps a live session for its final snapshot.
func (r *Registry) Retire(id domain.SessionID, c closedSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.closed[id] = c
	r.order = append(r.order, id)
	for len(r.order) > r.retain {
		delete(r.closed, r.order[0])
		r.order = r.order[1:]
	}
	log.Info().Str("module", "app.registry").Str("session", string(id)).Str("status", string(c.session.Status)).Msg("retired session")
}

func (r *Registry) Closed(id domain.SessionID) (closedSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.closed[id]
	return c, ok
}

// IDs lists the live sessions.
func (r *Registry) IDs() []domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.SessionID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
