package core

import (
	"context"
	"time"

	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// LinkStats is a raw statistics pull from one connection.
type LinkStats struct {
	BytesSent     uint64
	BytesReceived uint64
	PacketsLost   int64
	Jitter        time.Duration
	RoundTripTime time.Duration
	Timestamp     time.Time
}

// RemoteTrack is the subset of *webrtc.TrackRemote the engine reads from.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	SSRC() webrtc.SSRC
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	HasRemoteDescription() bool
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// AddLocalTrack attaches an outgoing track before negotiation.
	AddLocalTrack(webrtc.TrackLocal) error
	// ReplaceTrack swaps the outgoing track of the given kind without renegotiation.
	ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error
	SetVideoBitrate(bps int)
	RequestKeyframe(ssrc webrtc.SSRC) error
	Stats(ctx context.Context) (LinkStats, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track RemoteTrack))
	OnStateChange(func(webrtc.PeerConnectionState))
}

type ConnectionFactory interface {
	NewConnection(cfg webrtc.Configuration, peer domain.ParticipantID) (MediaConnection, error)
}
