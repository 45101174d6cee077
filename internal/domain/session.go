// Package domain contains session entities and the rules that keep them consistent.
// No transport or media logic lives here.
package domain

import (
	"fmt"
	"slices"
	"time"
)

type (
	SessionID     string
	SessionStatus string
)

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusEnded     SessionStatus = "ended"
	StatusCancelled SessionStatus = "cancelled"
	StatusFailed    SessionStatus = "failed"
)

var transitions = map[SessionStatus][]SessionStatus{
	StatusScheduled: {StatusWaiting, StatusCancelled, StatusFailed},
	StatusWaiting:   {StatusActive, StatusCancelled, StatusFailed},
	StatusActive:    {StatusEnded, StatusFailed},
}

// Terminal reports whether no transition may leave s.
func (s SessionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled || s == StatusFailed
}

// CanTransition reports whether from -> to is an edge of the session state machine.
func CanTransition(from, to SessionStatus) bool {
	return slices.Contains(transitions[from], to)
}

type Features struct {
	Recording   bool `json:"recording"`
	ScreenShare bool `json:"screen_share"`
	Chat        bool `json:"chat"`
	FileShare   bool `json:"file_share"`
}

// AllFeatures enables every optional capability.
func AllFeatures() Features {
	return Features{Recording: true, ScreenShare: true, Chat: true, FileShare: true}
}

// Descriptor is the metadata a host supplies when scheduling a session.
type Descriptor struct {
	ID            SessionID `json:"id,omitempty"`
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	TherapistID   string    `json:"therapist_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Features      Features  `json:"features"`
	RoomRef       string    `json:"room_ref,omitempty"`
}

type Session struct {
	ID            SessionID      `json:"id"`
	AppointmentID string         `json:"appointment_id"`
	PatientID     string         `json:"patient_id"`
	TherapistID   string         `json:"therapist_id"`
	Status        SessionStatus  `json:"status"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	Features      Features       `json:"features"`
	RoomRef       string         `json:"room_ref"`
	LastQuality   *QualitySample `json:"last_quality,omitempty"`
	Participants  []*Participant `json:"participants"`
	Chat          []ChatMessage  `json:"chat"`
}

// NewSession builds a scheduled session from a descriptor.
func NewSession(id SessionID, d Descriptor) *Session {
	room := d.RoomRef
	if room == "" {
		room = string(id)
	}
	return &Session{
		ID:            id,
		AppointmentID: d.AppointmentID,
		PatientID:     d.PatientID,
		TherapistID:   d.TherapistID,
		Status:        StatusScheduled,
		ScheduledAt:   d.ScheduledAt,
		Features:      d.Features,
		RoomRef:       room,
	}
}

// Transition moves the session to the given status, stamping start/end times.
func (s *Session) Transition(to SessionStatus, at time.Time) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	switch {
	case to == StatusActive:
		s.StartedAt = &at
	case to.Terminal():
		s.EndedAt = &at
	}
	return nil
}

func (s *Session) Participant(id ParticipantID) (*Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// AddParticipant appends p to the roster. Returns false when the id is already present.
func (s *Session) AddParticipant(p *Participant) bool {
	if _, ok := s.Participant(p.ID); ok {
		return false
	}
	s.Participants = append(s.Participants, p)
	return true
}

func (s *Session) RemoveParticipant(id ParticipantID) bool {
	n := len(s.Participants)
	s.Participants = slices.DeleteFunc(s.Participants, func(p *Participant) bool { return p.ID == id })
	return len(s.Participants) != n
}

func (s *Session) ParticipantIDs() []ParticipantID {
	out := make([]ParticipantID, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, p.ID)
	}
	return out
}

// AppendChat records a relayed message in the append-only history.
func (s *Session) AppendChat(m ChatMessage) {
	s.Chat = append(s.Chat, m)
}

// Clone returns a deep copy safe to hand out of the owning lock.
func (s *Session) Clone() Session {
	c := *s
	c.Participants = make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		cp := p.Clone()
		c.Participants = append(c.Participants, &cp)
	}
	c.Chat = slices.Clone(s.Chat)
	if s.LastQuality != nil {
		q := *s.LastQuality
		c.LastQuality = &q
	}
	return c
}
