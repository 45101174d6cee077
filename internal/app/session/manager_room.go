package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

// ParticipantInfo identifies a local participant joining a session.
type ParticipantInfo struct {
	ID          domain.ParticipantID `json:"id"`
	DisplayName string               `json:"display_name"`
	Role        domain.Role          `json:"role"`
}

// Join admits a local participant: captures its media, adds it to the roster
// and starts its engine.
func (m *Manager) Join(ctx context.Context, id domain.SessionID, info ParticipantInfo) (domain.Participant, error) {
	st, err := m.state(id)
	if err != nil {
		return domain.Participant{}, err
	}
	p, err := domain.NewParticipant(info.ID, info.DisplayName, info.Role, m.now())
	if err != nil {
		return domain.Participant{}, err
	}

	st.mu.Lock()
	err = m.admissibleLocked(st, p.ID)
	st.mu.Unlock()
	if err != nil {
		return domain.Participant{}, err
	}

	media, err := m.deps.Capturer.Acquire(ctx, p.ID)
	if err != nil {
		m.captureFailed(ctx, st, p.ID)
		if !errors.Is(err, domain.ErrDeviceAccessDenied) {
			err = errors.Join(domain.ErrDeviceAccessDenied, err)
		}
		return domain.Participant{}, fmt.Errorf("session: join %s: %w", p.ID, err)
	}

	st.mu.Lock()
	if err := m.admissibleLocked(st, p.ID); err != nil {
		st.mu.Unlock()
		media.Close()
		return domain.Participant{}, err
	}
	st.session.AddParticipant(p)
	now := m.now()
	changed := false
	if st.session.Status == domain.StatusScheduled {
		changed = st.transitionLocked(domain.StatusWaiting, now)
	}
	if st.session.Status == domain.StatusWaiting && len(st.session.Participants) >= 2 {
		changed = st.transitionLocked(domain.StatusActive, now) || changed
	}
	e := newEngine(m, st, *p, st.session.RoomRef, st.session.Features, media)
	st.engines[p.ID] = e
	joined := p.Clone()
	snap := st.session.Clone()
	st.mu.Unlock()

	e.start()
	st.log.Info().Str("participant", string(p.ID)).Str("role", string(p.Role)).Msg("participant joined")
	st.publish(core.SessionEvent{Kind: core.EventParticipantJoined, Participant: p.ID, Local: p.ID})
	if changed {
		st.statusChanged(snap)
	}
	st.persistParticipants(ctx, snapParticipants(snap))
	st.persistSession(ctx, snap)
	return joined, nil
}

func (m *Manager) admissibleLocked(st *sessionState, pid domain.ParticipantID) error {
	s := st.session
	if s.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, s.ID, s.Status)
	}
	if _, ok := s.Participant(pid); ok {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyJoined, pid)
	}
	if m.cfg.MaxParticipants > 0 && len(s.Participants) >= m.cfg.MaxParticipants {
		return fmt.Errorf("%w: %d participants", domain.ErrCapacityExceeded, m.cfg.MaxParticipants)
	}
	return nil
}

// captureFailed fails a session whose first participant cannot capture media.
func (m *Manager) captureFailed(ctx context.Context, st *sessionState, pid domain.ParticipantID) {
	st.mu.Lock()
	if len(st.session.Participants) > 0 || !st.transitionLocked(domain.StatusFailed, m.now()) {
		st.mu.Unlock()
		st.log.Warn().Str("participant", string(pid)).Msg("capture unavailable")
		return
	}
	snap := st.session.Clone()
	st.mu.Unlock()
	st.log.Error().Str("participant", string(pid)).Msg("first participant cannot capture, session failed")
	st.statusChanged(snap)
	st.persistSession(ctx, snap)
	m.retire(st, snap)
}

// Leave removes a local participant. A session that was active ends when its
// roster empties.
func (m *Manager) Leave(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) error {
	st, err := m.state(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	e, ok := st.engines[pid]
	if !ok {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s is not a local participant of %s", domain.ErrParticipantNotFound, pid, id)
	}
	delete(st.engines, pid)
	st.session.RemoveParticipant(pid)
	var gone []domain.ParticipantID
	if len(st.engines) == 0 {
		// Without a local engine nothing keeps the remote entries current.
		gone = st.session.ParticipantIDs()
		for _, rid := range gone {
			st.session.RemoveParticipant(rid)
		}
	}
	empty := len(st.session.Participants) == 0
	st.mu.Unlock()

	if recorder, ok := st.recorder.Recorder(); ok && (recorder == pid || empty) {
		m.finishRecording(ctx, st, pid)
	}
	st.recorder.Forget(pid)
	e.stop()

	st.log.Info().Str("participant", string(pid)).Msg("participant left")
	st.publish(core.SessionEvent{Kind: core.EventParticipantLeft, Participant: pid, Local: pid})
	for _, rid := range gone {
		st.share.Forget(rid)
		st.publish(core.SessionEvent{Kind: core.EventParticipantLeft, Participant: rid, Local: pid})
	}

	st.mu.Lock()
	changed := false
	if len(st.session.Participants) == 0 && st.session.Status == domain.StatusActive {
		changed = st.transitionLocked(domain.StatusEnded, m.now())
	}
	snap := st.session.Clone()
	st.mu.Unlock()

	if changed {
		st.statusChanged(snap)
	}
	st.persistParticipants(ctx, snapParticipants(snap))
	st.persistSession(ctx, snap)
	if snap.Status.Terminal() {
		m.retire(st, snap)
	}
	return nil
}
