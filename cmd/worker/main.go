package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/chain"
	"github.com/mx-auction/backend/internal/config"
	"github.com/mx-auction/backend/internal/db"
	"github.com/mx-auction/backend/internal/events"
	"github.com/mx-auction/backend/internal/repositories"
	"github.com/mx-auction/backend/internal/services"
)

// The worker runs the settlement sweep for expired auctions, retries asset
// releases that failed at settlement time, and reconciles payouts whose
// on-chain outcome was unknown when they were sent.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	chainClient, err := chain.NewClient(ctx, chain.ClientCfg{
		RPCURL:      cfg.RPCURL,
		ChainID:     cfg.ChainID,
		OperatorKey: cfg.OperatorKey,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to chain rpc", zap.Error(err))
	}

	// Repos
	auctionRepo := repositories.NewAuctionRepo(pool)
	bidRepo := repositories.NewBidRepo(pool)
	returnRepo := repositories.NewPendingReturnRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	feedRepo := repositories.NewFeedRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	oracleService := services.NewOracleService(cfg, feedRepo, auditRepo, chainClient, publisher, log)
	auctionService := services.NewAuctionService(cfg, auctionRepo, bidRepo, returnRepo, escrowRepo, payoutRepo, auditRepo, chainClient, oracleService, publisher, log)

	log.Info("worker started",
		zap.Duration("settle_interval", cfg.SettleInterval),
		zap.Duration("release_interval", cfg.ReleaseInterval),
	)

	settleTicker := time.NewTicker(cfg.SettleInterval)
	releaseTicker := time.NewTicker(cfg.ReleaseInterval)
	feedTicker := time.NewTicker(10 * time.Minute)
	defer settleTicker.Stop()
	defer releaseTicker.Stop()
	defer feedTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-settleTicker.C:
			runSettleSweep(ctx, auctionService, log)
		case <-releaseTicker.C:
			runReleaseRetry(ctx, auctionService, log)
			runPayoutReconcile(ctx, auctionService, log)
		case <-feedTicker.C:
			runFeedHealthCheck(ctx, oracleService, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runSettleSweep(ctx context.Context, auctionService *services.AuctionService, log *zap.Logger) {
	settled, err := auctionService.SettleExpired(ctx)
	if err != nil {
		log.Error("settlement sweep failed", zap.Error(err))
		return
	}
	if settled > 0 {
		log.Info("settlement sweep done", zap.Int("settled", settled))
	}
}

func runReleaseRetry(ctx context.Context, auctionService *services.AuctionService, log *zap.Logger) {
	retried, err := auctionService.RetryHeldReleases(ctx)
	if err != nil {
		log.Error("release retry failed", zap.Error(err))
		return
	}
	if retried > 0 {
		log.Info("release retry done", zap.Int("retried", retried))
	}
}

func runPayoutReconcile(ctx context.Context, auctionService *services.AuctionService, log *zap.Logger) {
	resolved, err := auctionService.ReconcilePayouts(ctx)
	if err != nil {
		log.Error("payout reconciliation failed", zap.Error(err))
		return
	}
	if resolved > 0 {
		log.Info("payout reconciliation done", zap.Int("resolved", resolved))
	}
}

// runFeedHealthCheck logs stale feeds. Feed health never blocks auctions,
// but a stale feed silently disables the reserve sanity check.
func runFeedHealthCheck(ctx context.Context, oracleService *services.OracleService, log *zap.Logger) {
	bindings, err := oracleService.ListFeeds(ctx)
	if err != nil {
		log.Error("feed listing failed", zap.Error(err))
		return
	}
	for _, b := range bindings {
		reading, err := oracleService.Read(ctx, b.CurrencyKind)
		if err != nil {
			log.Warn("feed read failed", zap.String("currency_kind", b.CurrencyKind), zap.Error(err))
			continue
		}
		if reading.Stale {
			log.Warn("price feed is stale",
				zap.String("currency_kind", b.CurrencyKind),
				zap.String("feed", b.FeedAddress),
				zap.Time("updated_at", reading.UpdatedAt),
			)
		}
	}
}
