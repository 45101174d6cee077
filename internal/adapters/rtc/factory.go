package rtc

import (
	"fmt"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/webrtc/v4"
)

// Factory builds pion connections with the default codecs, the default
// interceptor chain and a stats interceptor feeding Connection.Stats.
type Factory struct {
	defaults webrtc.Configuration
}

// NewFactory uses the ICE servers of defaults for connections configured without any.
func NewFactory(defaults webrtc.Configuration) *Factory {
	return &Factory{defaults: defaults}
}

func (f *Factory) NewConnection(cfg webrtc.Configuration, peer domain.ParticipantID) (core.MediaConnection, error) {
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = f.defaults.ICEServers
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("rtc: register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("rtc: register interceptors: %w", err)
	}
	sf, err := stats.NewInterceptor()
	if err != nil {
		return nil, fmt.Errorf("rtc: stats interceptor: %w", err)
	}
	getter := make(chan stats.Getter, 1)
	sf.OnNewPeerConnection(func(_ string, g stats.Getter) { getter <- g })
	ir.Add(sf)

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir))
	c, err := newConnection(api, cfg, peer)
	if err != nil {
		return nil, fmt.Errorf("rtc: new peer connection: %w", err)
	}
	select {
	case c.stats = <-getter:
	default:
	}
	return c, nil
}
