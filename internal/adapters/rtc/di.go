package rtc

import (
	"github.com/dkeye/consult/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(do.Injector) (core.ConnectionFactory, error) {
		return NewFactory(webrtc.Configuration{}), nil
	})
}
