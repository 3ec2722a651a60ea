package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/auth"
	"github.com/mx-auction/backend/internal/config"
	"github.com/mx-auction/backend/internal/http/dto"
)

// AuthHandler implements wallet-signature login: the client requests a
// one-time nonce, signs the resulting message with its wallet key and trades
// the signature for a JWT.
type AuthHandler struct {
	rdb *redis.Client
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(rdb *redis.Client, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{rdb: rdb, cfg: cfg, log: log}
}

func nonceKey(walletAddress string) string {
	return "auth:nonce:" + strings.ToLower(walletAddress)
}

func loginMessage(nonce string) string {
	return fmt.Sprintf("Sign in to MX Auction\nNonce: %s", nonce)
}

func (h *AuthHandler) Nonce(c *fiber.Ctx) error {
	var req dto.AuthNonceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if !common.IsHexAddress(req.WalletAddress) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid wallet address"})
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	nonce := hex.EncodeToString(buf)

	if err := h.rdb.Set(c.Context(), nonceKey(req.WalletAddress), nonce, h.cfg.NonceTTL).Err(); err != nil {
		h.log.Error("nonce store failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.AuthNonceResponse{
		Nonce:   nonce,
		Message: loginMessage(nonce),
	}})
}

func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req dto.AuthVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if !common.IsHexAddress(req.WalletAddress) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid wallet address"})
	}

	key := nonceKey(req.WalletAddress)
	nonce, err := h.rdb.Get(c.Context(), key).Result()
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "nonce expired or not requested"})
	}

	ok, err := auth.VerifySignature([]byte(loginMessage(nonce)), req.Signature, req.WalletAddress)
	if err != nil || !ok {
		h.log.Debug("signature verification failed",
			zap.String("wallet", req.WalletAddress),
			zap.Error(err),
		)
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid signature"})
	}

	// One signature per nonce.
	h.rdb.Del(c.Context(), key)

	wallet := common.HexToAddress(req.WalletAddress).Hex()
	token, err := auth.GenerateJWT(h.cfg.JWTSecret, wallet, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("jwt generation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.AuthResponse{
		Token:         token,
		WalletAddress: wallet,
	}})
}
