package storage

import (
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/core"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (core.Storage, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.Storage.Kind == "http" {
			return NewHTTPUploader(cfg.Storage.BaseURL, cfg.Storage.Token), nil
		}
		fs, err := NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	})
}
