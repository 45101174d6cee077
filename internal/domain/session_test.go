package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []SessionStatus{
	StatusScheduled, StatusWaiting, StatusActive, StatusEnded, StatusCancelled, StatusFailed,
}

func TestTerminalStatusHasNoOutgoingTransition(t *testing.T) {
	t.Parallel()

	for _, from := range []SessionStatus{StatusEnded, StatusCancelled, StatusFailed} {
		for _, to := range allStatuses {
			s := &Session{Status: from}
			err := s.Transition(to, time.Now())
			require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			assert.Equal(t, from, s.Status)
		}
	}
}

func TestSessionHappyPathStampsTimes(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", Descriptor{AppointmentID: "apt-1"})
	assert.Equal(t, StatusScheduled, s.Status)
	assert.Equal(t, "s1", s.RoomRef)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Transition(StatusWaiting, start))
	require.NoError(t, s.Transition(StatusActive, start))
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, start, *s.StartedAt)

	end := start.Add(30 * time.Minute)
	require.NoError(t, s.Transition(StatusEnded, end))
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, end, *s.EndedAt)
}

func TestActiveCannotBeCancelled(t *testing.T) {
	t.Parallel()

	s := &Session{Status: StatusActive}
	require.ErrorIs(t, s.Transition(StatusCancelled, time.Now()), ErrInvalidTransition)
	assert.False(t, CanTransition(StatusActive, StatusWaiting))
	assert.True(t, CanTransition(StatusWaiting, StatusFailed))
}

func TestRosterAddRemoveAndClone(t *testing.T) {
	t.Parallel()

	s := NewSession("s1", Descriptor{})
	a, err := NewParticipant("a", "Dr. A", RoleTherapist, time.Now())
	require.NoError(t, err)
	assert.True(t, s.AddParticipant(a))
	assert.False(t, s.AddParticipant(a))

	a.SetLinkStats(QualitySample{Peer: "b", Score: 0.9})
	c := s.Clone()
	c.Participants[0].LinkStats["b"] = QualitySample{Peer: "b", Score: 0.1}
	assert.InDelta(t, 0.9, a.LinkStats["b"].Score, 1e-9)

	assert.True(t, s.RemoveParticipant("a"))
	assert.False(t, s.RemoveParticipant("a"))
	assert.Empty(t, s.ParticipantIDs())
}

func TestPermissionsDerivedFromRole(t *testing.T) {
	t.Parallel()

	assert.True(t, PermissionsFor(RoleTherapist).Record)
	assert.False(t, PermissionsFor(RolePatient).Record)

	obs, err := NewParticipant("o", "", RoleObserver, time.Now())
	require.NoError(t, err)
	assert.False(t, obs.Permissions.Speak)
	assert.False(t, obs.Permissions.Share)
	assert.False(t, obs.Media.Audio)
	assert.True(t, obs.Permissions.Chat)

	_, err = NewParticipant("x", "", Role("admin"), time.Now())
	require.ErrorIs(t, err, ErrInvalidRole)
	_, err = NewParticipant("", "", RolePatient, time.Now())
	require.ErrorIs(t, err, ErrInvalidParticipant)
}
