// Package fakes holds in-memory stand-ins for the media ports used in tests.
package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrNoRemoteDescription = errors.New("fake: remote description not set")

type Connection struct {
	Peer domain.ParticipantID

	mu         sync.Mutex
	ctx        context.Context
	started    bool
	closed     bool
	remoteSet  bool
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	replaced   map[webrtc.RTPCodecType]webrtc.TrackLocal
	bitrate    int
	stats      core.LinkStats
	statsErr   error
	keyframes  []webrtc.SSRC
	offers     int
	answers    int

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(context.Context, core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
	c.started = true
	return nil
}

func (c *Connection) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		return ErrNoRemoteDescription
	}
	c.candidates = append(c.candidates, ci)
	return nil
}

func (c *Connection) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteSet
}

func (c *Connection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, errors.New("fake: not an offer")
	}
	c.remoteSet = true
	c.answers++
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if answer.Type != webrtc.SDPTypeAnswer {
		return errors.New("fake: not an answer")
	}
	c.remoteSet = true
	return nil
}

func (c *Connection) AddLocalTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *Connection) ReplaceTrack(kind webrtc.RTPCodecType, t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replaced == nil {
		c.replaced = make(map[webrtc.RTPCodecType]webrtc.TrackLocal)
	}
	c.replaced[kind] = t
	return nil
}

func (c *Connection) SetVideoBitrate(bps int) {
	c.mu.Lock()
	c.bitrate = bps
	c.mu.Unlock()
}

func (c *Connection) RequestKeyframe(ssrc webrtc.SSRC) error {
	c.mu.Lock()
	c.keyframes = append(c.keyframes, ssrc)
	c.mu.Unlock()
	return nil
}

func (c *Connection) Stats(context.Context) (core.LinkStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats, c.statsErr
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *Connection) OnTrack(fn func(context.Context, core.RemoteTrack)) { c.onTrack = fn }

func (c *Connection) OnStateChange(fn func(webrtc.PeerConnectionState)) { c.onState = fn }

// SetStats sets what the next Stats call returns.
func (c *Connection) SetStats(s core.LinkStats, err error) {
	c.mu.Lock()
	c.stats, c.statsErr = s, err
	c.mu.Unlock()
}

func (c *Connection) EmitState(s webrtc.PeerConnectionState) {
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Connection) EmitCandidate(ci webrtc.ICECandidateInit) {
	if c.onICE != nil {
		c.onICE(ci)
	}
}

func (c *Connection) EmitTrack(t core.RemoteTrack) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.onTrack != nil {
		c.onTrack(ctx, t)
	}
}

func (c *Connection) Candidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.candidates...)
}

func (c *Connection) Tracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), c.tracks...)
}

func (c *Connection) Replaced(kind webrtc.RTPCodecType) webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replaced[kind]
}

func (c *Connection) Bitrate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bitrate
}

func (c *Connection) Keyframes() []webrtc.SSRC {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.SSRC(nil), c.keyframes...)
}

func (c *Connection) Offers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers
}

func (c *Connection) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Factory builds fake connections and remembers every one of them.
type Factory struct {
	mu    sync.Mutex
	conns map[domain.ParticipantID][]*Connection
	fail  error
	cfgs  []webrtc.Configuration
}

func NewFactory() *Factory {
	return &Factory{conns: make(map[domain.ParticipantID][]*Connection)}
}

func (f *Factory) NewConnection(cfg webrtc.Configuration, peer domain.ParticipantID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	c := &Connection{Peer: peer}
	f.conns[peer] = append(f.conns[peer], c)
	f.cfgs = append(f.cfgs, cfg)
	return c, nil
}

// FailWith makes every later NewConnection fail; nil restores it.
func (f *Factory) FailWith(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

// Last returns the newest connection built for peer.
func (f *Factory) Last(peer domain.ParticipantID) *Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.conns[peer]
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}

func (f *Factory) Count(peer domain.ParticipantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[peer])
}

func (f *Factory) Configs() []webrtc.Configuration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.Configuration(nil), f.cfgs...)
}
