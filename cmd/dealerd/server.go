package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/greenfelt/dealerd/cmd/dealerd/shared"
	"github.com/greenfelt/dealerd/internal/engine"
	"github.com/greenfelt/dealerd/internal/server"
	"github.com/greenfelt/dealerd/internal/store"
)

// ServerCmd runs the dealer daemon
type ServerCmd struct {
	Config  string `kong:"default='dealerd.hcl',help='Path to the HCL configuration file'"`
	Addr    string `kong:"help='Listen address override (host:port)'"`
	Debug   bool   `kong:"help='Enable debug logging'"`
	LogJSON bool   `kong:"name='log-json',help='Emit JSON logs instead of console output'"`
	Seed    *int64 `kong:"help='Deterministic RNG seed (optional)'"`
}

func (c *ServerCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var logger zerolog.Logger
	if c.LogJSON {
		logger = shared.SetupStructuredLogger(cfg.Server.LogLevel, c.Debug)
	} else {
		logger = shared.SetupLogger(cfg.Server.LogLevel, c.Debug)
	}

	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info().Int64("seed", seed).Msg("Using deterministic seed")
	} else {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	st, err := store.Open(cfg.Storage.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	gateway := server.NewServer(addr, logger)
	eng := engine.New(logger, cfg.EngineConfig(), st, st.Ledger(), gateway, rng, quartz.NewReal())
	gateway.SetEngine(eng)

	logger.Info().
		Str("address", addr).
		Str("storage", cfg.Storage.Path).
		Int("max_seats", cfg.Game.MaxSeats).
		Int("stakes_tiers", len(cfg.Stakes)).
		Msg("Starting dealer daemon")

	ctx := shared.SignalContext(logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		return gateway.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		eng.Stop()
		return gateway.Stop()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
