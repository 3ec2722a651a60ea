package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/config"
	"github.com/mx-auction/backend/internal/http/handlers"
	"github.com/mx-auction/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	auctionHandler *handlers.AuctionHandler,
	feedHandler *handlers.FeedHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/nonce", authHandler.Nonce)
	api.Post("/auth/verify", authHandler.Verify)

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Public reads
	api.Get("/auctions", auctionHandler.ListAuctions)
	api.Get("/auctions/:id", auctionHandler.GetAuction)
	api.Get("/auctions/:id/bids", auctionHandler.ListBids)
	api.Get("/auctions/:id/escrow", auctionHandler.GetEscrow)
	api.Get("/auctions/:id/events", auctionHandler.GetAuditTrail)
	api.Get("/auctions/:id/pending-returns/:bidder", auctionHandler.GetPendingReturn)
	api.Get("/price-feeds", feedHandler.ListFeeds)
	api.Get("/price-feeds/:kind", feedHandler.GetPrice)

	// Protected endpoints. The inner limiter keys by wallet, so a bidder
	// behind a shared IP gets their own budget for money-moving calls.
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	protected.Use(middleware.RateLimitMiddleware(rdb, 30, time.Minute))

	protected.Post("/auctions", auctionHandler.CreateAuction)
	protected.Post("/auctions/:id/bids", auctionHandler.PlaceBid)
	protected.Post("/auctions/:id/settle", auctionHandler.Settle)
	protected.Post("/auctions/:id/withdraw", auctionHandler.Withdraw)
	protected.Get("/me/pending-returns", auctionHandler.ListMyPendingReturns)

	// Owner-only: price feed administration
	owner := protected.Group("/admin", middleware.OwnerMiddleware(cfg))
	owner.Put("/price-feeds/:kind", feedHandler.SetPriceFeed)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
