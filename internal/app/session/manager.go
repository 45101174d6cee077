// Package session runs consultation sessions: roster, status, and one media
// engine per local participant.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/consult/internal/app/pool"
	"github.com/dkeye/consult/internal/app/quality"
	"github.com/dkeye/consult/internal/app/recording"
	"github.com/dkeye/consult/internal/app/screenshare"
	"github.com/dkeye/consult/internal/app/signaling"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DialerFactory returns the signaling transport of one local participant in a room.
type DialerFactory interface {
	DialerFor(room string, self domain.ParticipantID) signaling.Dialer
}

type DialerFactoryFunc func(room string, self domain.ParticipantID) signaling.Dialer

func (f DialerFactoryFunc) DialerFor(room string, self domain.ParticipantID) signaling.Dialer {
	return f(room, self)
}

type Config struct {
	Signaling signaling.Config
	Pool      pool.Config
	Quality   quality.Config
	Recording recording.Options
	// MaxParticipants bounds the roster when positive.
	MaxParticipants int
	EventBuffer     int
	// RetainClosed is how many ended, cancelled or failed sessions stay
	// readable through Get, History and Recording.
	RetainClosed int
}

type Deps struct {
	Dialers     DialerFactory
	Connections core.ConnectionFactory
	Capturer    core.Capturer
	Persistence core.Persistence
	Storage     core.Storage
	Consent     core.ConsentProvider
}

type Manager struct {
	cfg      Config
	deps     Deps
	registry *Registry
	log      zerolog.Logger
	now      func() time.Time
}

func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		registry: NewRegistry(cfg.RetainClosed),
		log:      log.With().Str("module", "session").Logger(),
		now:      time.Now,
	}
}

// Create registers a scheduled session.
func (m *Manager) Create(ctx context.Context, d domain.Descriptor) (*domain.Session, error) {
	id := d.ID
	if id == "" {
		id = domain.SessionID(uuid.NewString())
	}
	s := domain.NewSession(id, d)
	st := &sessionState{
		id:       id,
		log:      m.log.With().Str("session", string(id)).Logger(),
		events:   core.NewBus[core.SessionEvent]("session." + string(id)),
		share:    screenshare.New(id),
		recorder: recording.New(id, m.deps.Storage, m.deps.Persistence, m.deps.Consent, m.cfg.Recording),
		store:    m.deps.Persistence,
		session:  s,
		engines:  make(map[domain.ParticipantID]*engine),
		seenChat: make(map[string]struct{}),
	}
	if !m.registry.Add(st) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionExists, id)
	}
	st.watchShares()

	snap := st.snapshot()
	if err := m.deps.Persistence.SaveSession(ctx, snap); err != nil {
		m.registry.Remove(id)
		return nil, fmt.Errorf("session: persist %s: %w", id, err)
	}
	st.log.Info().Str("room", s.RoomRef).Msg("session created")
	return &snap, nil
}

func (m *Manager) state(id domain.SessionID) (*sessionState, error) {
	if st, ok := m.registry.Get(id); ok {
		return st, nil
	}
	if c, ok := m.registry.Closed(id); ok {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, id, c.session.Status)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
}

// Get returns a snapshot of the session. Closed sessions are served from
// their final snapshot while retained.
func (m *Manager) Get(id domain.SessionID) (domain.Session, error) {
	if st, ok := m.registry.Get(id); ok {
		return st.snapshot(), nil
	}
	if c, ok := m.registry.Closed(id); ok {
		return c.session.Clone(), nil
	}
	return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
}

func (m *Manager) IDs() []domain.SessionID {
	return m.registry.IDs()
}

// Subscribe streams the session's events until cancel is called or the
// session is shut down.
func (m *Manager) Subscribe(id domain.SessionID, buffer int) (<-chan core.SessionEvent, func(), error) {
	st, err := m.state(id)
	if err != nil {
		return nil, nil, err
	}
	if buffer <= 0 {
		buffer = m.cfg.EventBuffer
	}
	ch, cancel := st.events.Subscribe(buffer)
	return ch, cancel, nil
}

// Links returns the peers the local engine of participant is linked to.
func (m *Manager) Links(id domain.SessionID, participant domain.ParticipantID) ([]domain.ParticipantID, error) {
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}
	e, err := st.engine(participant)
	if err != nil {
		return nil, err
	}
	return e.pool.IDs(), nil
}

// Cancel tears down a session that never became active.
func (m *Manager) Cancel(ctx context.Context, id domain.SessionID) error {
	st, err := m.state(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if !st.transitionLocked(domain.StatusCancelled, m.now()) {
		status := st.session.Status
		st.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel %s session", domain.ErrInvalidTransition, status)
	}
	engines := st.detachAllLocked()
	snap := st.session.Clone()
	st.mu.Unlock()

	for _, e := range engines {
		e.stop()
	}
	st.statusChanged(snap)
	st.persistParticipants(ctx, snapParticipants(snap))
	st.persistSession(ctx, snap)
	m.retire(st, snap)
	return nil
}

// retire releases a terminal session's runtime and keeps its final snapshot.
// Subscribers see their channels closed.
func (m *Manager) retire(st *sessionState, snap domain.Session) {
	st.release()
	c := closedSession{session: snap}
	if a, ok := st.recorder.Artifact(); ok {
		c.recording = &a
	}
	m.registry.Retire(st.id, c)
}

// Shutdown makes every local participant leave, then closes what is left.
// Used when the process stops.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, id := range m.registry.IDs() {
		st, ok := m.registry.Get(id)
		if !ok {
			continue
		}
		st.mu.Lock()
		local := make([]domain.ParticipantID, 0, len(st.engines))
		for pid := range st.engines {
			local = append(local, pid)
		}
		st.mu.Unlock()
		for _, pid := range local {
			if err := m.Leave(ctx, id, pid); err != nil {
				m.log.Warn().Err(err).Str("session", string(id)).Str("participant", string(pid)).Msg("leave on shutdown failed")
			}
		}
		st.release()
	}
}

func (st *sessionState) engine(id domain.ParticipantID) (*engine, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a local participant of %s", domain.ErrParticipantNotFound, id, st.id)
	}
	return e, nil
}

// detachAllLocked removes every local engine and its roster entry.
func (st *sessionState) detachAllLocked() []*engine {
	out := make([]*engine, 0, len(st.engines))
	for id, e := range st.engines {
		out = append(out, e)
		st.session.RemoveParticipant(id)
		delete(st.engines, id)
	}
	return out
}

func snapParticipants(s domain.Session) []domain.Participant {
	out := make([]domain.Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, *p)
	}
	return out
}
