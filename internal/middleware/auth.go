package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/auth"
	"github.com/mx-auction/backend/internal/config"
)

const CtxWalletAddress = "wallet_address"

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxWalletAddress, claims.WalletAddress)

		return c.Next()
	}
}

func GetWalletAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals(CtxWalletAddress).(string)
	return addr
}

// OwnerMiddleware requires the authenticated wallet to hold the owner role.
func OwnerMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.IsOwner(GetWalletAddress(c)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "owner access required"})
		}
		return c.Next()
	}
}
