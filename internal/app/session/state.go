package session

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/consult/internal/app/recording"
	"github.com/dkeye/consult/internal/app/screenshare"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog"
)

// sessionState is everything one session owns. mu serializes roster and
// engine-map mutation; pool, share and recording calls happen outside it.
type sessionState struct {
	id       domain.SessionID
	log      zerolog.Logger
	events   *core.Bus[core.SessionEvent]
	share    *screenshare.Coordinator
	recorder *recording.Compositor
	store    core.Persistence

	mu       sync.Mutex
	session  *domain.Session
	engines  map[domain.ParticipantID]*engine
	seenChat map[string]struct{}

	stopShareEvents func()
	releaseOnce     sync.Once
}

func (st *sessionState) publish(ev core.SessionEvent) {
	ev.Session = st.id
	st.events.Publish(ev)
}

// transitionLocked applies a status change and reports whether it happened.
func (st *sessionState) transitionLocked(to domain.SessionStatus, at time.Time) bool {
	from := st.session.Status
	if err := st.session.Transition(to, at); err != nil {
		st.log.Debug().Err(err).Msg("transition skipped")
		return false
	}
	st.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("session status changed")
	return true
}

func (st *sessionState) snapshot() domain.Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.Clone()
}

func (st *sessionState) participantsLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(st.session.Participants))
	for _, p := range st.session.Participants {
		out = append(out, p.Clone())
	}
	return out
}

// persistSession writes the session snapshot. Persistence failures are logged;
// the live session is authoritative.
func (st *sessionState) persistSession(ctx context.Context, s domain.Session) {
	if err := st.store.SaveSession(ctx, s); err != nil {
		st.log.Error().Err(err).Msg("session not persisted")
	}
}

func (st *sessionState) persistParticipants(ctx context.Context, ps []domain.Participant) {
	if err := st.store.UpdateParticipants(ctx, st.id, ps); err != nil {
		st.log.Error().Err(err).Msg("participants not persisted")
	}
}

func (st *sessionState) statusChanged(s domain.Session) {
	st.publish(core.SessionEvent{Kind: core.EventStatusChanged, Status: s.Status})
}

// appendChat records m once, however many local engines receive it.
func (st *sessionState) appendChat(m domain.ChatMessage, local domain.ParticipantID) {
	st.mu.Lock()
	if _, dup := st.seenChat[m.ID]; dup {
		st.mu.Unlock()
		return
	}
	st.seenChat[m.ID] = struct{}{}
	st.session.AppendChat(m)
	st.mu.Unlock()
	kind := core.EventChatReceived
	if m.Kind == domain.KindAnnotation {
		kind = core.EventWhiteboard
	}
	st.publish(core.SessionEvent{Kind: kind, Participant: m.Sender, Local: local, Chat: &m})
}

// tiles lists the recording tiles in roster order.
func (st *sessionState) tiles() []recording.Tile {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]recording.Tile, 0, len(st.session.Participants))
	for _, p := range st.session.Participants {
		out = append(out, recording.Tile{Participant: p.ID, Label: p.DisplayName})
	}
	return out
}

// watchShares mirrors grant changes into the roster and the event stream.
func (st *sessionState) watchShares() {
	grants, cancel := st.share.Subscribe(16)
	st.stopShareEvents = cancel
	go func() {
		for g := range grants {
			st.mu.Lock()
			if p, ok := st.session.Participant(g.Participant); ok {
				p.Media.Screen = g.Active
			}
			st.mu.Unlock()
			kind := core.EventScreenShareEnded
			if g.Active {
				kind = core.EventScreenShareStarted
			}
			st.publish(core.SessionEvent{Kind: kind, Participant: g.Participant})
		}
	}()
}

// release stops the share watcher and closes both event buses.
func (st *sessionState) release() {
	st.releaseOnce.Do(func() {
		if st.stopShareEvents != nil {
			st.stopShareEvents()
		}
		st.share.Close()
		st.events.Close()
		st.log.Debug().Msg("session released")
	})
}

func (st *sessionState) setConnection(id domain.ParticipantID, status domain.ConnectionStatus) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.session.Participant(id)
	if !ok || p.ConnectionStatus == status {
		return false
	}
	p.ConnectionStatus = status
	return true
}
