package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/chain"
	"github.com/mx-auction/backend/internal/config"
	"github.com/mx-auction/backend/internal/db"
	"github.com/mx-auction/backend/internal/events"
	apphttp "github.com/mx-auction/backend/internal/http"
	"github.com/mx-auction/backend/internal/http/handlers"
	"github.com/mx-auction/backend/internal/repositories"
	"github.com/mx-auction/backend/internal/services"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Chain
	chainClient, err := chain.NewClient(ctx, chain.ClientCfg{
		RPCURL:      cfg.RPCURL,
		ChainID:     cfg.ChainID,
		OperatorKey: cfg.OperatorKey,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to chain rpc", zap.Error(err))
	}

	// Repositories
	auctionRepo := repositories.NewAuctionRepo(pool)
	bidRepo := repositories.NewBidRepo(pool)
	returnRepo := repositories.NewPendingReturnRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	feedRepo := repositories.NewFeedRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	oracleService := services.NewOracleService(cfg, feedRepo, auditRepo, chainClient, publisher, log)
	auctionService := services.NewAuctionService(cfg, auctionRepo, bidRepo, returnRepo, escrowRepo, payoutRepo, auditRepo, chainClient, oracleService, publisher, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(rdb, cfg, log)
	auctionHandler := handlers.NewAuctionHandler(auctionService, log)
	feedHandler := handlers.NewFeedHandler(oracleService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, auctionHandler, feedHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
