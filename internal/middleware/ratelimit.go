package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Bidders often share exit IPs; key authenticated traffic by wallet
		// so one bidder cannot starve another behind the same NAT.
		caller := c.IP()
		if wallet, _ := c.Locals(CtxWalletAddress).(string); wallet != "" {
			caller = wallet
		}
		key := fmt.Sprintf("rl:%s:%s", c.Path(), caller)

		ctx := context.Background()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next() // fail open
		}

		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		return c.Next()
	}
}
