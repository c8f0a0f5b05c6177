// server/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinizap/mindmap/server/config"
	"github.com/vinizap/mindmap/server/domain"
	"github.com/vinizap/mindmap/server/filesystem"
	httphandlers "github.com/vinizap/mindmap/server/http"
	"github.com/vinizap/mindmap/server/metrics"
	"github.com/vinizap/mindmap/server/peer"
	"github.com/vinizap/mindmap/server/store"
	"github.com/vinizap/mindmap/server/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := newLogger(cfg)

	seed := domain.DefaultDocument()
	if cfg.SeedFile != "" {
		seed, err = filesystem.ReadDocument(cfg.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("failed to load seed document")
		}
		if err := domain.Validate(seed); err != nil {
			log.Warn().Err(err).Str("file", cfg.SeedFile).Msg("seed document has problems, loading it anyway")
		}
	}
	st := store.NewWithSeed(seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(cfg.ServerID, log)
	go hub.Run(ctx)

	m := metrics.NewCollector("mindmap")
	server := httphandlers.NewServer(st, hub, m, log, cfg.Strict)
	app := httphandlers.NewApp(server, httphandlers.Options{
		Token:     cfg.Token,
		BodyLimit: cfg.BodyLimit,
	})

	if len(cfg.Peers) > 0 {
		peer.NewPeerManager(cfg.Peers, hub, st, m, cfg.Token, log).Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("server_id", cfg.ServerID).
			Bool("strict", cfg.Strict).
			Int("peers", len(cfg.Peers)).
			Msg("server starting")
		errCh <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.LogLevel)

	if cfg.LogPretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "mindmap").Logger()
}
