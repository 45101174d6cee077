package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/core"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (core.Persistence, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		switch cfg.Store.Driver {
		case "postgres":
			p, err := pgxpool.New(ctx, cfg.Store.DSN)
			if err != nil {
				return nil, fmt.Errorf("failed to connect database: %w", err)
			}
			if err := p.Ping(ctx); err != nil {
				p.Close()
				return nil, fmt.Errorf("failed to ping database: %w", err)
			}
			if err := RunPostgresMigration(ctx, p); err != nil {
				p.Close()
				return nil, fmt.Errorf("failed to run migration: %w", err)
			}
			log.Info().Str("module", "store").Msg("postgres store ready")
			return NewPostgresStore(p), nil
		case "sqlite":
			s, err := OpenSQLite(ctx, cfg.Store.DSN)
			if err != nil {
				return nil, err
			}
			log.Info().Str("module", "store").Str("path", cfg.Store.DSN).Msg("sqlite store ready")
			return s, nil
		default:
			log.Warn().Str("module", "store").Msg("persistence disabled")
			return Noop{}, nil
		}
	})
}
