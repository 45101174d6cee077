package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/consult/internal/app/recording"
	"github.com/dkeye/consult/internal/app/screenshare"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
)

// local resolves a local participant and a snapshot of it.
func (st *sessionState) local(pid domain.ParticipantID) (*engine, domain.Participant, domain.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.engines[pid]
	if !ok {
		return nil, domain.Participant{}, domain.Session{}, fmt.Errorf("%w: %s is not a local participant of %s", domain.ErrParticipantNotFound, pid, st.id)
	}
	p, _ := st.session.Participant(pid)
	return e, p.Clone(), st.session.Clone(), nil
}

// StartShare replaces the participant's outgoing camera with a screen capture
// on every link. Only one participant may share at a time.
func (m *Manager) StartShare(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) (domain.ScreenShareGrant, error) {
	st, err := m.state(id)
	if err != nil {
		return domain.ScreenShareGrant{}, err
	}
	e, p, s, err := st.local(pid)
	if err != nil {
		return domain.ScreenShareGrant{}, err
	}
	switch {
	case !s.Features.ScreenShare:
		return domain.ScreenShareGrant{}, domain.ErrFeatureDisabled
	case !p.Permissions.Share:
		return domain.ScreenShareGrant{}, domain.ErrPermissionDenied
	case s.Status.Terminal():
		return domain.ScreenShareGrant{}, domain.ErrSessionClosed
	}
	if g, ok := st.share.Active(); ok {
		return domain.ScreenShareGrant{}, fmt.Errorf("%w: held by %s", domain.ErrScreenShareAlreadyActive, g.Participant)
	}

	src, err := m.deps.Capturer.AcquireScreen(ctx, pid)
	if err != nil {
		if !errors.Is(err, domain.ErrDeviceAccessDenied) {
			err = errors.Join(domain.ErrDeviceAccessDenied, err)
		}
		return domain.ScreenShareGrant{}, fmt.Errorf("session: screen capture for %s: %w", pid, err)
	}
	return st.share.Start(e.ctx, screenshare.Share{
		Participant: pid,
		Switcher:    e.pool,
		Camera:      e.media.VideoTrack(),
		Source:      src,
		Signaler:    e.signal,
	})
}

// StopShare restores the participant's camera.
func (m *Manager) StopShare(_ context.Context, id domain.SessionID, pid domain.ParticipantID) error {
	st, err := m.state(id)
	if err != nil {
		return err
	}
	if _, err := st.engine(pid); err != nil {
		return err
	}
	return st.share.Stop(pid)
}

// StartRecording composes the session as seen by pid into one artifact.
func (m *Manager) StartRecording(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) (domain.RecordingArtifact, error) {
	st, err := m.state(id)
	if err != nil {
		return domain.RecordingArtifact{}, err
	}
	e, _, s, err := st.local(pid)
	if err != nil {
		return domain.RecordingArtifact{}, err
	}
	return st.recorder.Start(ctx, s, pid, recording.Source{
		Packets: e.pool,
		Local:   e.media,
		Roster:  st.tiles,
	})
}

// StopRecording finalizes and uploads the active recording.
func (m *Manager) StopRecording(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) (domain.RecordingArtifact, error) {
	st, err := m.state(id)
	if err != nil {
		return domain.RecordingArtifact{}, err
	}
	_, p, _, err := st.local(pid)
	if err != nil {
		return domain.RecordingArtifact{}, err
	}
	if !p.Permissions.Record {
		return domain.RecordingArtifact{}, domain.ErrPermissionDenied
	}
	return m.finishRecording(ctx, st, pid)
}

func (m *Manager) finishRecording(ctx context.Context, st *sessionState, pid domain.ParticipantID) (domain.RecordingArtifact, error) {
	a, err := st.recorder.Stop(ctx)
	if errors.Is(err, domain.ErrNoActiveRecording) {
		return a, err
	}
	st.publish(core.SessionEvent{Kind: core.EventRecordingFinished, Participant: pid, Artifact: &a, Err: err})
	return a, err
}

// Recording returns the active recording, or the last finished one.
func (m *Manager) Recording(id domain.SessionID) (domain.RecordingArtifact, bool, error) {
	if c, ok := m.registry.Closed(id); ok {
		if c.recording == nil {
			return domain.RecordingArtifact{}, false, nil
		}
		return c.recording.Clone(), true, nil
	}
	st, err := m.state(id)
	if err != nil {
		return domain.RecordingArtifact{}, false, err
	}
	a, ok := st.recorder.Artifact()
	return a, ok, nil
}
