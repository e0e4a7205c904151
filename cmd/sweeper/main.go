package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yatrago/hold-engine/internal/adapters/crdb"
	"github.com/yatrago/hold-engine/internal/clock"
	"github.com/yatrago/hold-engine/internal/config"
	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/hold"
	"github.com/yatrago/hold-engine/internal/observability"
	"github.com/yatrago/hold-engine/internal/policy"
)

// Standalone sweeper for deployments that run expiry isolated from the API
// process. Running it alongside the API's own sweeper is harmless: the
// ACTIVE-status precondition on release makes overlapping sweeps no-ops.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.StoreDSN)
	if err != nil {
		log.Fatalf("failed to connect to store: %v", err)
	}
	defer pool.Close()
	store := crdb.NewStore(pool)

	// The release path never consults partner policy, so a static provider
	// with platform defaults is enough here.
	policies := policy.Static{Policy: domain.PartnerPolicy{
		HoldEnabled:  true,
		HoldQuotaPct: cfg.DefaultQuotaPct,
		HoldExpiry:   cfg.DefaultHoldTTL,
	}}

	mgr := hold.NewManager(store, policies, clock.NewSystem(), logger,
		hold.WithDefaultTTL(cfg.DefaultHoldTTL))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := hold.NewSweeper(mgr, logger, hold.WithSweepInterval(cfg.SweepInterval))
	sweeper.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown sweeper")
	sweeper.Stop()
}
