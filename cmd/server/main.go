package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/dkeye/consult/internal/adapters/capture"
	"github.com/dkeye/consult/internal/adapters/consent"
	router "github.com/dkeye/consult/internal/adapters/http"
	"github.com/dkeye/consult/internal/adapters/rtc"
	relay "github.com/dkeye/consult/internal/adapters/signal"
	"github.com/dkeye/consult/internal/adapters/storage"
	"github.com/dkeye/consult/internal/adapters/store"
	"github.com/dkeye/consult/internal/app/session"
	"github.com/dkeye/consult/internal/config"
)

const shutdownTimeout = 10 * time.Second

func initLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func setupDI(cfg *config.Config) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	store.RegisterDI(injector)
	storage.RegisterDI(injector)
	capture.RegisterDI(injector)
	consent.RegisterDI(injector)
	rtc.RegisterDI(injector)
	relay.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the config says otherwise.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	initLogger(cfg)

	injector := setupDI(cfg)
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve session manager")
	}
	signals := do.MustInvoke[*relay.Relay](injector)
	consents := do.MustInvoke[*consent.Memory](injector)

	r := router.SetupRouter(ctx, cfg, manager, consents, signals)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("mode", cfg.Mode).Msg("consult server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	manager.Shutdown(shutdownCtx)
	signals.Close()
	if report := injector.ShutdownWithContext(shutdownCtx); report != nil && !report.Succeed {
		log.Error().Err(report).Msg("dependency shutdown failed")
	}
	log.Info().Msg("Server exited gracefully")
}
