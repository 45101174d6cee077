package store

import (
	"context"

	"github.com/dkeye/consult/internal/domain"
)

// Noop discards everything. Used when store.driver is none.
type Noop struct{}

func (Noop) SaveSession(context.Context, domain.Session) error { return nil }

func (Noop) UpdateParticipants(context.Context, domain.SessionID, []domain.Participant) error {
	return nil
}

func (Noop) SaveChatMessage(context.Context, domain.ChatMessage) error { return nil }

func (Noop) SaveRecordingMetadata(context.Context, domain.RecordingArtifact) error { return nil }

func (Noop) SaveQualitySample(context.Context, domain.SessionID, domain.QualitySample) error {
	return nil
}
