package pool

import (
	"context"

	"github.com/dkeye/consult/internal/core"
	"github.com/pion/webrtc/v4"
)

func (p *Pool) handleTrack(ctx context.Context, l *link, t core.RemoteTrack) {
	p.log.Info().
		Str("peer", string(l.peer)).
		Str("kind", t.Kind().String()).
		Str("track_id", t.ID()).
		Str("stream_id", t.StreamID()).
		Msg("remote track")

	if t.Kind() == webrtc.RTPCodecTypeVideo {
		p.mu.Lock()
		l.videoSSRC = append(l.videoSSRC, t.SSRC())
		p.mu.Unlock()
		if err := l.conn.RequestKeyframe(t.SSRC()); err != nil {
			p.log.Debug().Err(err).Str("peer", string(l.peer)).Msg("initial keyframe request failed")
		}
	}

	p.events.Publish(LinkEvent{Kind: LinkRemoteTrack, Peer: l.peer, TrackID: t.ID(), TrackKind: t.Kind()})
	go p.pump(ctx, l, t)
}

// pump reads the remote track until it ends and fans packets out to the sinks.
func (p *Pool) pump(ctx context.Context, l *link, t core.RemoteTrack) {
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, _, err := t.ReadRTP()
		if err != nil {
			p.log.Debug().Err(err).Str("peer", string(l.peer)).Str("track_id", t.ID()).Msg("remote track ended")
			return
		}
		p.mu.Lock()
		sinks := make([]PacketSink, 0, len(p.sinks))
		for _, s := range p.sinks {
			sinks = append(sinks, s)
		}
		p.mu.Unlock()
		for _, s := range sinks {
			s.WriteRTP(l.peer, t.Kind(), pkt)
		}
	}
}
