package fakes

import (
	"io"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack replays queued RTP packets and then reports io.EOF.
type RemoteTrack struct {
	TrackID   string
	Stream    string
	TrackKind webrtc.RTPCodecType
	Ssrc      webrtc.SSRC

	mu      sync.Mutex
	packets []*rtp.Packet
}

func NewRemoteTrack(id string, kind webrtc.RTPCodecType, ssrc webrtc.SSRC, packets ...*rtp.Packet) *RemoteTrack {
	return &RemoteTrack{TrackID: id, Stream: id, TrackKind: kind, Ssrc: ssrc, packets: packets}
}

func (t *RemoteTrack) ID() string                { return t.TrackID }
func (t *RemoteTrack) StreamID() string          { return t.Stream }
func (t *RemoteTrack) Kind() webrtc.RTPCodecType { return t.TrackKind }
func (t *RemoteTrack) SSRC() webrtc.SSRC         { return t.Ssrc }

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.packets) == 0 {
		return nil, nil, io.EOF
	}
	p := t.packets[0]
	t.packets = t.packets[1:]
	return p, nil, nil
}
