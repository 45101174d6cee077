package domain

import (
	"maps"
	"time"
)

type RecordingStatus string

const (
	RecordingActive     RecordingStatus = "recording"
	RecordingProcessing RecordingStatus = "processing"
	RecordingCompleted  RecordingStatus = "completed"
	RecordingFailed     RecordingStatus = "failed"
)

type RecordingQuality struct {
	Width        int `json:"width"`
	Height       int `json:"height"`
	VideoBitrate int `json:"video_bitrate"`
	AudioBitrate int `json:"audio_bitrate"`
}

// DefaultRecordingQuality is the fixed composition target.
func DefaultRecordingQuality() RecordingQuality {
	return RecordingQuality{Width: 1280, Height: 720, VideoBitrate: 2_500_000, AudioBitrate: 128_000}
}

type RecordingArtifact struct {
	ID        string                 `json:"id"`
	SessionID SessionID              `json:"session_id"`
	StartedBy ParticipantID          `json:"started_by"`
	StartedAt time.Time              `json:"started_at"`
	EndedAt   *time.Time             `json:"ended_at,omitempty"`
	Format    string                 `json:"format"`
	Quality   RecordingQuality       `json:"quality"`
	Consent   map[ParticipantID]bool `json:"consent"`
	Status    RecordingStatus        `json:"status"`
	Duration  time.Duration          `json:"duration"`
	Size      int64                  `json:"size"`
	URL       string                 `json:"url,omitempty"`
	Failure   string                 `json:"failure,omitempty"`
	// Note flags a recording that completed with degraded content.
	Note string `json:"note,omitempty"`
}

// MissingConsent lists participants without a granted consent flag.
func MissingConsent(consent map[ParticipantID]bool, roster []ParticipantID) []ParticipantID {
	var missing []ParticipantID
	for _, id := range roster {
		if !consent[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func (a RecordingArtifact) Clone() RecordingArtifact {
	c := a
	c.Consent = maps.Clone(a.Consent)
	return c
}
