// Package pool owns the full-mesh peer links of one local participant.
package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultVideoBitrate = 2_500_000
	MinVideoBitrate     = 100_000
)

type State string

const (
	StateNew       State = "new"
	StateOffering  State = "offering"
	StateAnswering State = "answering"
	StateStable    State = "stable"
	StateClosed    State = "closed"
)

type Config struct {
	ICEServers     []webrtc.ICEServer
	InitialBitrate int
	MinBitrate     int
}

func DefaultConfig() Config {
	return Config{InitialBitrate: DefaultVideoBitrate, MinBitrate: MinVideoBitrate}
}

// PacketSink receives every RTP packet read from remote tracks.
type PacketSink interface {
	WriteRTP(peer domain.ParticipantID, kind webrtc.RTPCodecType, pkt *rtp.Packet)
}

type link struct {
	peer      domain.ParticipantID
	conn      core.MediaConnection
	pending   []webrtc.ICECandidateInit
	state     State
	bitrate   int
	initiator bool
	videoSSRC []webrtc.SSRC

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
}

type Pool struct {
	self     domain.ParticipantID
	factory  core.ConnectionFactory
	signaler core.Signaler
	cfg      Config
	log      zerolog.Logger
	events   *core.Bus[LinkEvent]

	mu       sync.Mutex
	links    map[domain.ParticipantID]*link
	audio    webrtc.TrackLocal
	video    webrtc.TrackLocal
	sinks    map[int]PacketSink
	nextSink int
}

func New(self domain.ParticipantID, factory core.ConnectionFactory, signaler core.Signaler, cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.InitialBitrate <= 0 {
		cfg.InitialBitrate = def.InitialBitrate
	}
	if cfg.MinBitrate <= 0 {
		cfg.MinBitrate = def.MinBitrate
	}
	return &Pool{
		self:     self,
		factory:  factory,
		signaler: signaler,
		cfg:      cfg,
		log:      log.With().Str("module", "pool").Str("participant", string(self)).Logger(),
		events:   core.NewBus[LinkEvent]("pool." + string(self)),
		links:    make(map[domain.ParticipantID]*link),
		sinks:    make(map[int]PacketSink),
	}
}

// ShouldInitiate reports whether local offers to remote: the later joiner
// initiates, ties are broken by the larger id.
func ShouldInitiate(local, remote *domain.Participant) bool {
	if !local.JoinedAt.Equal(remote.JoinedAt) {
		return local.JoinedAt.After(remote.JoinedAt)
	}
	return local.ID > remote.ID
}

func (p *Pool) Subscribe(buffer int) (<-chan LinkEvent, func()) {
	return p.events.Subscribe(buffer)
}

// SetLocalTracks sets the outgoing tracks attached to links created from now on.
func (p *Pool) SetLocalTracks(audio, video webrtc.TrackLocal) {
	p.mu.Lock()
	p.audio, p.video = audio, video
	p.mu.Unlock()
}

// AddSink registers a sink for remote RTP. The returned func removes it.
func (p *Pool) AddSink(s PacketSink) func() {
	p.mu.Lock()
	id := p.nextSink
	p.nextSink++
	p.sinks[id] = s
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.sinks, id)
		p.mu.Unlock()
	}
}

// CreateLink builds a link to peer, replacing any existing one. When initiator
// is set an offer is sent right away.
func (p *Pool) CreateLink(ctx context.Context, peer domain.ParticipantID, initiator bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createLocked(ctx, peer, initiator)
}

func (p *Pool) createLocked(ctx context.Context, peer domain.ParticipantID, initiator bool) error {
	if old, ok := p.links[peer]; ok {
		p.closeLocked(old)
	}

	l, err := p.newLink(ctx, peer, initiator)
	if err != nil {
		return err
	}
	p.links[peer] = l

	if initiator {
		if err := p.offerLocked(l); err != nil {
			p.closeLocked(l)
			return err
		}
	}
	p.log.Info().Str("peer", string(peer)).Bool("initiator", initiator).Msg("link created")
	return nil
}

func (p *Pool) newLink(ctx context.Context, peer domain.ParticipantID, initiator bool) (*link, error) {
	conn, err := p.factory.NewConnection(webrtc.Configuration{ICEServers: p.cfg.ICEServers}, peer)
	if err != nil {
		return nil, fmt.Errorf("pool: new connection to %s: %w", peer, err)
	}
	lctx, cancel := context.WithCancel(ctx)
	l := &link{
		peer:      peer,
		conn:      conn,
		state:     StateNew,
		bitrate:   p.cfg.InitialBitrate,
		initiator: initiator,
		parent:    ctx,
		ctx:       lctx,
		cancel:    cancel,
	}

	// Local candidates go out in gathering order.
	conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := p.signaler.Send(core.MsgICECandidate, core.Candidate{Route: core.Route{From: p.self, To: peer}, Candidate: c}); err != nil {
			p.log.Debug().Err(err).Str("peer", string(peer)).Msg("candidate not sent")
		}
	})
	conn.OnStateChange(func(s webrtc.PeerConnectionState) {
		go p.handleState(l, s)
	})
	conn.OnTrack(func(tctx context.Context, t core.RemoteTrack) {
		p.handleTrack(tctx, l, t)
	})

	for _, t := range []webrtc.TrackLocal{p.audio, p.video} {
		if t == nil {
			continue
		}
		if err := conn.AddLocalTrack(t); err != nil {
			cancel()
			conn.Close()
			return nil, fmt.Errorf("pool: add %s track: %w", t.Kind(), err)
		}
	}
	conn.SetVideoBitrate(l.bitrate)

	if err := conn.Start(lctx); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("pool: start connection: %w", err)
	}
	return l, nil
}

func (p *Pool) offerLocked(l *link) error {
	offer, err := l.conn.CreateAndSetOffer()
	if err != nil {
		return fmt.Errorf("%w: offer to %s: %v", domain.ErrNegotiationFailed, l.peer, err)
	}
	l.state = StateOffering
	if err := p.signaler.Send(core.MsgOffer, core.Description{Route: core.Route{From: p.self, To: l.peer}, SDP: *offer}); err != nil {
		p.log.Warn().Err(err).Str("peer", string(l.peer)).Msg("offer not sent")
	}
	return nil
}

// HandleOffer answers an offer from peer. A link that already has a remote
// description is recreated first: the peer has rebuilt its side.
func (p *Pool) HandleOffer(ctx context.Context, peer domain.ParticipantID, sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.links[peer]
	if !ok || l.conn.HasRemoteDescription() || l.state == StateOffering {
		if ok {
			ctx = l.parent
		}
		if err := p.createLocked(ctx, peer, false); err != nil {
			return err
		}
		l = p.links[peer]
	}

	l.state = StateAnswering
	answer, err := l.conn.ApplyOfferAndCreateAnswer(sdp)
	if err != nil {
		return fmt.Errorf("%w: answer %s: %v", domain.ErrNegotiationFailed, peer, err)
	}
	p.flushLocked(l)
	l.state = StateStable

	if err := p.signaler.Send(core.MsgAnswer, core.Description{Route: core.Route{From: p.self, To: peer}, SDP: *answer}); err != nil {
		p.log.Warn().Err(err).Str("peer", string(peer)).Msg("answer not sent")
	}
	return nil
}

func (p *Pool) HandleAnswer(peer domain.ParticipantID, sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.links[peer]
	if !ok {
		return fmt.Errorf("%w: answer from %s without link", domain.ErrNegotiationFailed, peer)
	}
	if l.state != StateOffering {
		return fmt.Errorf("%w: unexpected answer from %s in state %s", domain.ErrNegotiationFailed, peer, l.state)
	}
	if err := l.conn.ApplyAnswer(sdp); err != nil {
		return fmt.Errorf("%w: apply answer from %s: %v", domain.ErrNegotiationFailed, peer, err)
	}
	p.flushLocked(l)
	l.state = StateStable
	return nil
}

// HandleCandidate applies a remote candidate, or queues it until the remote
// description is known.
func (p *Pool) HandleCandidate(peer domain.ParticipantID, c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.links[peer]
	if !ok {
		p.log.Debug().Str("peer", string(peer)).Msg("candidate for unknown link dropped")
		return nil
	}
	if !l.conn.HasRemoteDescription() {
		l.pending = append(l.pending, c)
		return nil
	}
	return l.conn.AddICECandidate(c)
}

func (p *Pool) flushLocked(l *link) {
	for _, c := range l.pending {
		if err := l.conn.AddICECandidate(c); err != nil {
			p.log.Warn().Err(err).Str("peer", string(l.peer)).Msg("queued candidate rejected")
		}
	}
	l.pending = nil
}

func (p *Pool) handleState(l *link, s webrtc.PeerConnectionState) {
	p.mu.Lock()
	if cur, ok := p.links[l.peer]; !ok || cur != l {
		p.mu.Unlock()
		return
	}

	switch s {
	case webrtc.PeerConnectionStateConnected:
		p.mu.Unlock()
		p.events.Publish(LinkEvent{Kind: LinkUp, Peer: l.peer})

	case webrtc.PeerConnectionStateFailed:
		p.log.Warn().Str("peer", string(l.peer)).Msg("link failed, recreating")
		err := p.createLocked(l.parent, l.peer, l.initiator)
		if err != nil {
			delete(p.links, l.peer)
		}
		p.mu.Unlock()
		if err != nil {
			p.log.Error().Err(err).Str("peer", string(l.peer)).Msg("relink failed")
			p.events.Publish(LinkEvent{Kind: LinkUnreachable, Peer: l.peer, Err: errors.Join(domain.ErrParticipantUnreachable, err)})
			return
		}
		p.events.Publish(LinkEvent{Kind: LinkRelinked, Peer: l.peer})

	default:
		p.mu.Unlock()
	}
}

// ReplaceVideoTrack swaps the outgoing video on every link and for later links.
func (p *Pool) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.video = track
	var errs []error
	for _, l := range p.links {
		if err := l.conn.ReplaceTrack(webrtc.RTPCodecTypeVideo, track); err != nil {
			errs = append(errs, fmt.Errorf("replace video on %s: %w", l.peer, err))
		}
	}
	return errors.Join(errs...)
}

// SetVideoBitrate applies bps, clamped to the configured range, and returns the applied value.
func (p *Pool) SetVideoBitrate(peer domain.ParticipantID, bps int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.links[peer]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	bps = max(p.cfg.MinBitrate, min(p.cfg.InitialBitrate, bps))
	l.bitrate = bps
	l.conn.SetVideoBitrate(bps)
	return bps, nil
}

func (p *Pool) VideoBitrate(peer domain.ParticipantID) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.links[peer]
	if !ok {
		return 0, false
	}
	return l.bitrate, true
}

func (p *Pool) State(peer domain.ParticipantID) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.links[peer]
	if !ok {
		return StateClosed, false
	}
	return l.state, true
}

// Stats pulls statistics without holding the pool lock.
func (p *Pool) Stats(ctx context.Context, peer domain.ParticipantID) (core.LinkStats, error) {
	p.mu.Lock()
	l, ok := p.links[peer]
	p.mu.Unlock()
	if !ok {
		return core.LinkStats{}, domain.ErrParticipantNotFound
	}
	return l.conn.Stats(ctx)
}

// RequestKeyframes asks every remote video sender for a fresh keyframe.
func (p *Pool) RequestKeyframes() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.links {
		for _, ssrc := range l.videoSSRC {
			if err := l.conn.RequestKeyframe(ssrc); err != nil {
				p.log.Debug().Err(err).Str("peer", string(l.peer)).Msg("keyframe request failed")
			}
		}
	}
}

func (p *Pool) CloseLink(peer domain.ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.links[peer]; ok {
		p.closeLocked(l)
		p.log.Info().Str("peer", string(peer)).Msg("link closed")
	}
}

func (p *Pool) CloseAll() {
	p.mu.Lock()
	for _, l := range p.links {
		p.closeLocked(l)
	}
	p.mu.Unlock()
	p.events.Close()
}

func (p *Pool) closeLocked(l *link) {
	l.cancel()
	l.state = StateClosed
	l.pending = nil
	l.conn.Close()
	if cur, ok := p.links[l.peer]; ok && cur == l {
		delete(p.links, l.peer)
	}
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.links)
}

func (p *Pool) IDs() []domain.ParticipantID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]domain.ParticipantID, 0, len(p.links))
	for id := range p.links {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
