package signal

import (
	"github.com/dkeye/consult/internal/app/session"
	"github.com/dkeye/consult/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Relay, error) {
		cfg := do.MustInvoke[*config.Config](i)
		rc := DefaultRelayConfig()
		rc.ReadLimit = cfg.ReadLimit
		rc.PingPeriod = cfg.PingPeriod
		return NewRelay(rc), nil
	})
	do.Provide(injector, func(i do.Injector) (session.DialerFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return Dialers{BaseURL: cfg.Signaling.URL, WriteTimeout: cfg.PingPeriod}, nil
	})
}
