package core

//go:generate mockgen -source=store_iface.go -destination=mocks/mock_store.go -package=mocks

import (
	"context"

	"github.com/dkeye/consult/internal/domain"
)

// Persistence is write-only from the engine's point of view; it never reads back.
type Persistence interface {
	SaveSession(ctx context.Context, s domain.Session) error
	UpdateParticipants(ctx context.Context, id domain.SessionID, participants []domain.Participant) error
	SaveChatMessage(ctx context.Context, m domain.ChatMessage) error
	SaveRecordingMetadata(ctx context.Context, a domain.RecordingArtifact) error
	SaveQualitySample(ctx context.Context, id domain.SessionID, q domain.QualitySample) error
}

// Storage uploads finished artifacts and shared files.
type Storage interface {
	UploadArtifact(ctx context.Context, data []byte, contentType string) (string, error)
}

// ConsentProvider reports recording consent collected outside the engine.
type ConsentProvider interface {
	Consents(ctx context.Context, id domain.SessionID) (map[domain.ParticipantID]bool, error)
}
