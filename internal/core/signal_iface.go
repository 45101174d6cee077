package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	MsgOffer              MessageType = "offer"
	MsgAnswer             MessageType = "answer"
	MsgICECandidate       MessageType = "ice-candidate"
	MsgParticipantJoined  MessageType = "participant-joined"
	MsgParticipantLeft    MessageType = "participant-left"
	MsgChatMessage        MessageType = "chat-message"
	MsgWhiteboardUpdate   MessageType = "whiteboard-update"
	MsgScreenShareStarted MessageType = "screen-share-started"
	MsgScreenShareEnded   MessageType = "screen-share-ended"
)

// Envelope is the wire frame of every signaling message.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Route addresses a payload. An empty To means every participant.
type Route struct {
	From domain.ParticipantID `json:"from"`
	To   domain.ParticipantID `json:"to,omitempty"`
}

// For reports whether a receiver should act on a payload with this route.
func (r Route) For(self domain.ParticipantID) bool {
	return r.From != self && (r.To == "" || r.To == self)
}

type Presence struct {
	Route
	DisplayName string      `json:"display_name"`
	Role        domain.Role `json:"role"`
	JoinedAt    time.Time   `json:"joined_at"`
	// Reply marks an addressed answer to a newcomer's announcement.
	Reply bool `json:"reply,omitempty"`
	// Sharing tells a newcomer that the sender holds the screen-share grant.
	Sharing bool `json:"sharing,omitempty"`
}

type Description struct {
	Route
	SDP webrtc.SessionDescription `json:"sdp"`
}

type Candidate struct {
	Route
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type ScreenShare struct {
	Route
	At time.Time `json:"at"`
}

type Chat struct {
	Route
	Message domain.ChatMessage `json:"message"`
}

// Whiteboard carries an annotation; Message.Content holds the drawing update.
type Whiteboard struct {
	Route
	Message domain.ChatMessage `json:"message"`
}

// Signaler sends one message. It never blocks and never buffers across reconnects.
type Signaler interface {
	Send(t MessageType, payload any) error
}
