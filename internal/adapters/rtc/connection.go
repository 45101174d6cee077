package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoSender = errors.New("rtc: no sender for track kind")

// Connection is a core.MediaConnection over a pion PeerConnection.
type Connection struct {
	pc   *webrtc.PeerConnection
	peer domain.ParticipantID
	log  zerolog.Logger

	stats stats.Getter

	mu      sync.Mutex
	senders map[webrtc.RTPCodecType]*webrtc.RTPSender
	remote  []webrtc.SSRC
	cancel  context.CancelFunc
	closed  bool
	bitrate atomic.Int64

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(context.Context, core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func newConnection(api *webrtc.API, cfg webrtc.Configuration, peer domain.ParticipantID) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{
		pc:      pc,
		peer:    peer,
		log:     log.With().Str("module", "rtc").Str("peer", string(peer)).Logger(),
		senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
	}, nil
}

func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		if c.onState != nil {
			c.onState(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		c.remote = append(c.remote, track.SSRC())
		c.mu.Unlock()
		if c.onTrack != nil {
			c.onTrack(ctx, track)
		}
	})

	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return nil
}

func (c *Connection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := c.pc.Close(); err != nil {
		c.log.Error().Err(err).Msg("close error")
	} else {
		c.log.Info().Msg("closed")
	}
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(ctx context.Context, track core.RemoteTrack)) { c.onTrack = fn }

func (c *Connection) OnStateChange(fn func(webrtc.PeerConnectionState)) { c.onState = fn }

// AddLocalTrack attaches an outgoing track and drains its RTCP so interceptors keep running.
func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders[track.Kind()] = sender
	c.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	c.mu.Lock()
	sender, ok := c.senders[kind]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, kind)
	}
	return sender.ReplaceTrack(track)
}

// SetVideoBitrate records the target for the video source. Pion exposes no
// encoder, so sources that encode read it back through VideoBitrate.
func (c *Connection) SetVideoBitrate(bps int) {
	c.bitrate.Store(int64(bps))
	c.log.Debug().Int("bitrate", bps).Msg("video bitrate target")
}

func (c *Connection) VideoBitrate() int {
	return int(c.bitrate.Load())
}

func (c *Connection) RequestKeyframe(ssrc webrtc.SSRC) error {
	return c.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}})
}

// Stats folds one sample out of the transport byte counters and the RTP
// stream stats: loss and round trip time as reported back by the remote
// receiver, jitter as the worst of both directions.
func (c *Connection) Stats(ctx context.Context) (core.LinkStats, error) {
	if err := ctx.Err(); err != nil {
		return core.LinkStats{}, err
	}
	if c.IsClosed() {
		return core.LinkStats{}, webrtc.ErrConnectionClosed
	}
	out := core.LinkStats{Timestamp: time.Now()}
	for _, s := range c.pc.GetStats() {
		if t, ok := s.(webrtc.TransportStats); ok {
			out.BytesSent += t.BytesSent
			out.BytesReceived += t.BytesReceived
		}
	}
	if c.stats == nil {
		return out, nil
	}

	c.mu.Lock()
	local := make([]webrtc.SSRC, 0, len(c.senders))
	for _, sender := range c.senders {
		for _, enc := range sender.GetParameters().Encodings {
			local = append(local, enc.SSRC)
		}
	}
	remote := append([]webrtc.SSRC(nil), c.remote...)
	c.mu.Unlock()

	for _, ssrc := range local {
		if st := c.stats.Get(uint32(ssrc)); st != nil {
			ri := st.RemoteInboundRTPStreamStats
			out.PacketsLost += ri.PacketsLost
			out.RoundTripTime = max(out.RoundTripTime, ri.RoundTripTime)
			out.Jitter = max(out.Jitter, seconds(ri.Jitter))
		}
	}
	for _, ssrc := range remote {
		if st := c.stats.Get(uint32(ssrc)); st != nil {
			out.Jitter = max(out.Jitter, seconds(st.InboundRTPStreamStats.Jitter))
		}
	}
	return out, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
