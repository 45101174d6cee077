package session

import (
	"context"

	"github.com/dkeye/consult/internal/domain"
)

// SendChat relays a message from a local participant. A message that was
// persisted but could not be relayed is still kept in history and returned
// alongside the error.
func (m *Manager) SendChat(ctx context.Context, id domain.SessionID, pid domain.ParticipantID, content string, kind domain.MessageKind, file *domain.FileRef) (domain.ChatMessage, error) {
	st, err := m.state(id)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	e, p, s, err := st.local(pid)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if s.Status.Terminal() {
		return domain.ChatMessage{}, domain.ErrSessionClosed
	}
	if !p.Permissions.Chat || (kind == domain.KindFile && !p.Permissions.FileShare) {
		return domain.ChatMessage{}, domain.ErrPermissionDenied
	}
	msg, err := e.chat.Send(ctx, id, pid, content, kind, file)
	if msg.ID != "" {
		st.appendChat(msg, pid)
	}
	return msg, err
}

// UploadFile stores an attachment for a later file message.
func (m *Manager) UploadFile(ctx context.Context, id domain.SessionID, pid domain.ParticipantID, name, contentType string, data []byte) (*domain.FileRef, error) {
	st, err := m.state(id)
	if err != nil {
		return nil, err
	}
	e, p, _, err := st.local(pid)
	if err != nil {
		return nil, err
	}
	if !p.Permissions.FileShare {
		return nil, domain.ErrPermissionDenied
	}
	return e.chat.UploadFile(ctx, name, contentType, data)
}

// History returns the chat history in relay order.
func (m *Manager) History(id domain.SessionID) ([]domain.ChatMessage, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Chat, nil
}
