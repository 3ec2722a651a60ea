package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func LoggerMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		reqID, _ := c.Locals(CtxRequestID).(string)
		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		}
		// Authenticated money-moving requests carry the wallet for audit
		// cross-referencing.
		if wallet, _ := c.Locals(CtxWalletAddress).(string); wallet != "" {
			fields = append(fields, zap.String("wallet", wallet))
		}
		log.Info("request", fields...)

		return err
	}
}
