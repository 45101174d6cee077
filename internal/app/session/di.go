package session

import (
	"github.com/dkeye/consult/internal/app/pool"
	"github.com/dkeye/consult/internal/app/quality"
	"github.com/dkeye/consult/internal/app/recording"
	"github.com/dkeye/consult/internal/app/signaling"
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/samber/do/v2"
)

// ConfigFrom maps the service configuration onto the engine's.
func ConfigFrom(cfg *config.Config) Config {
	sc := signaling.DefaultConfig()
	if cfg.Signaling.ReconnectInterval > 0 {
		sc.ReconnectInterval = cfg.Signaling.ReconnectInterval
	}
	if cfg.Signaling.OutboxSize > 0 {
		sc.OutboxSize = cfg.Signaling.OutboxSize
	}

	pc := pool.DefaultConfig()
	for _, s := range cfg.ICE {
		pc.ICEServers = append(pc.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	qc := quality.DefaultConfig()
	if cfg.Quality.Interval > 0 {
		qc.Interval = cfg.Quality.Interval
	}
	qc.RecoverAfter = cfg.Quality.RecoverAfter

	return Config{
		Signaling: sc,
		Pool:      pc,
		Quality:   qc,
		Recording: recording.Options{
			FrameRate: cfg.Recording.FrameRate,
			Quality:   domain.DefaultRecordingQuality(),
		},
		MaxParticipants: cfg.Session.MaxParticipants,
		RetainClosed:    cfg.Session.RetainClosed,
	}
}

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewManager(ConfigFrom(cfg), Deps{
			Dialers:     do.MustInvoke[DialerFactory](i),
			Connections: do.MustInvoke[core.ConnectionFactory](i),
			Capturer:    do.MustInvoke[core.Capturer](i),
			Persistence: do.MustInvoke[core.Persistence](i),
			Storage:     do.MustInvoke[core.Storage](i),
			Consent:     do.MustInvoke[core.ConsentProvider](i),
		}), nil
	})
}
