package domain

import (
	"strings"
	"time"
)

const MaxChatContentLen = 4000

type MessageKind string

const (
	KindText       MessageKind = "text"
	KindFile       MessageKind = "file"
	KindAnnotation MessageKind = "annotation"
)

// FileRef points to an already uploaded file. Only the reference is relayed.
type FileRef struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type ChatMessage struct {
	ID        string        `json:"id"`
	SessionID SessionID     `json:"session_id"`
	Sender    ParticipantID `json:"sender_id"`
	Kind      MessageKind   `json:"kind"`
	Content   string        `json:"content"`
	File      *FileRef      `json:"file,omitempty"`
	SentAt    time.Time     `json:"sent_at"`
}

func (m ChatMessage) Validate() error {
	if m.Sender == "" || len(m.Content) > MaxChatContentLen {
		return ErrInvalidMessage
	}
	switch m.Kind {
	case KindText, KindAnnotation:
		if strings.TrimSpace(m.Content) == "" {
			return ErrInvalidMessage
		}
	case KindFile:
		if m.File == nil || m.File.URL == "" {
			return ErrFileNotUploaded
		}
	default:
		return ErrInvalidMessage
	}
	return nil
}
