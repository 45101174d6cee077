// Package chat relays text, file and annotation messages between participants.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Relay belongs to one local participant. Messages are persisted before they
// are broadcast; there is no acknowledgement and no retry.
type Relay struct {
	self        domain.ParticipantID
	session     domain.SessionID
	features    domain.Features
	signaler    core.Signaler
	persistence core.Persistence
	storage     core.Storage
	log         zerolog.Logger
	now         func() time.Time
}

func New(session domain.SessionID, self domain.ParticipantID, features domain.Features, signaler core.Signaler, persistence core.Persistence, storage core.Storage) *Relay {
	return &Relay{
		self:        self,
		session:     session,
		features:    features,
		signaler:    signaler,
		persistence: persistence,
		storage:     storage,
		log:         log.With().Str("module", "chat").Str("session", string(session)).Str("participant", string(self)).Logger(),
		now:         time.Now,
	}
}

// Send validates, persists and broadcasts one message. Annotations travel as
// whiteboard updates.
func (r *Relay) Send(ctx context.Context, sessionID domain.SessionID, senderID domain.ParticipantID, content string, kind domain.MessageKind, file *domain.FileRef) (domain.ChatMessage, error) {
	if sessionID != r.session || senderID != r.self {
		return domain.ChatMessage{}, fmt.Errorf("%w: relay of %s/%s cannot send for %s/%s", domain.ErrInvalidMessage, r.session, r.self, sessionID, senderID)
	}
	if !r.features.Chat {
		return domain.ChatMessage{}, domain.ErrFeatureDisabled
	}
	if kind == domain.KindFile && !r.features.FileShare {
		return domain.ChatMessage{}, domain.ErrFeatureDisabled
	}

	m := domain.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    senderID,
		Kind:      kind,
		Content:   content,
		File:      file,
		SentAt:    r.now(),
	}
	if err := m.Validate(); err != nil {
		return domain.ChatMessage{}, err
	}

	if err := r.persistence.SaveChatMessage(ctx, m); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("chat: persist: %w", err)
	}

	route := core.Route{From: r.self}
	var err error
	if kind == domain.KindAnnotation {
		err = r.signaler.Send(core.MsgWhiteboardUpdate, core.Whiteboard{Route: route, Message: m})
	} else {
		err = r.signaler.Send(core.MsgChatMessage, core.Chat{Route: route, Message: m})
	}
	if err != nil {
		// Persisted but not relayed; peers see it in history only.
		r.log.Warn().Err(err).Str("message", m.ID).Msg("chat message not relayed")
		return m, err
	}
	return m, nil
}

// Receive decodes an incoming chat-message or whiteboard-update payload.
// ok is false for echoes and for messages that fail validation.
func (r *Relay) Receive(t core.MessageType, data json.RawMessage) (m domain.ChatMessage, ok bool) {
	var route core.Route
	switch t {
	case core.MsgChatMessage:
		var c core.Chat
		if err := json.Unmarshal(data, &c); err != nil {
			r.log.Warn().Err(err).Msg("malformed chat message")
			return domain.ChatMessage{}, false
		}
		route, m = c.Route, c.Message
	case core.MsgWhiteboardUpdate:
		var w core.Whiteboard
		if err := json.Unmarshal(data, &w); err != nil {
			r.log.Warn().Err(err).Msg("malformed whiteboard update")
			return domain.ChatMessage{}, false
		}
		route, m = w.Route, w.Message
		m.Kind = domain.KindAnnotation
	default:
		return domain.ChatMessage{}, false
	}

	if !route.For(r.self) || m.SessionID != r.session || m.Sender != route.From {
		return domain.ChatMessage{}, false
	}
	if err := m.Validate(); err != nil {
		r.log.Debug().Err(err).Str("sender", string(m.Sender)).Msg("invalid chat message dropped")
		return domain.ChatMessage{}, false
	}
	return m, true
}

// UploadFile stores an attachment and returns the reference a file message needs.
func (r *Relay) UploadFile(ctx context.Context, name, contentType string, data []byte) (*domain.FileRef, error) {
	if !r.features.FileShare {
		return nil, domain.ErrFeatureDisabled
	}
	if name == "" || len(data) == 0 {
		return nil, domain.ErrInvalidMessage
	}
	url, err := r.storage.UploadArtifact(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	return &domain.FileRef{URL: url, Name: name, Size: int64(len(data))}, nil
}
