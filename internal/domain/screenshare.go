package domain

import "time"

type ScreenShareGrant struct {
	Participant ParticipantID `json:"participant_id"`
	Active      bool          `json:"active"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
}
