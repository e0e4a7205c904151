package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/yatrago/hold-engine/internal/adapters/crdb"
	mongoadapter "github.com/yatrago/hold-engine/internal/adapters/mongo"
	redisadapter "github.com/yatrago/hold-engine/internal/adapters/redis"
	"github.com/yatrago/hold-engine/internal/clock"
	"github.com/yatrago/hold-engine/internal/config"
	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/hold"
	httphandler "github.com/yatrago/hold-engine/internal/http"
	"github.com/yatrago/hold-engine/internal/idempotency"
	"github.com/yatrago/hold-engine/internal/observability"
	"github.com/yatrago/hold-engine/internal/policy"
	"github.com/yatrago/hold-engine/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

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
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("holdengine")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	defaultPolicy := domain.PartnerPolicy{
		HoldEnabled:  true,
		HoldQuotaPct: cfg.DefaultQuotaPct,
		HoldExpiry:   cfg.DefaultHoldTTL,
	}
	policyRepo := mongoadapter.NewPolicyRepository(mongoDB, defaultPolicy)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	policyCache := redisadapter.NewPolicyCache(redisClient)
	policies := policy.NewCachedProvider(policyRepo, policyCache, time.Minute, logger)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour)
	rl := rateLimit.NewRateLimiter(redisadapter.NewCache(redisClient))

	mgr := hold.NewManager(store, policies, clock.NewSystem(), logger,
		hold.WithDefaultTTL(cfg.DefaultHoldTTL),
		hold.WithAuditor(audit),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := hold.NewSweeper(mgr, logger, hold.WithSweepInterval(cfg.SweepInterval))
	sweeper.Start(ctx)

	handlers := httphandler.NewHandlers(cfg, mgr, catalog, policyRepo, policies, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
