package pool

import (
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

type LinkEventKind string

const (
	LinkUp          LinkEventKind = "up"
	LinkRelinked    LinkEventKind = "relinked"
	LinkUnreachable LinkEventKind = "unreachable"
	LinkRemoteTrack LinkEventKind = "remote-track"
)

type LinkEvent struct {
	Kind      LinkEventKind
	Peer      domain.ParticipantID
	TrackID   string
	TrackKind webrtc.RTPCodecType
	Err       error
}
