package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/http/dto"
	"github.com/mx-auction/backend/internal/middleware"
	"github.com/mx-auction/backend/internal/models"
	"github.com/mx-auction/backend/internal/repositories"
	"github.com/mx-auction/backend/internal/services"
)

type AuctionHandler struct {
	auctionService *services.AuctionService
	log            *zap.Logger
}

func NewAuctionHandler(auctionService *services.AuctionService, log *zap.Logger) *AuctionHandler {
	return &AuctionHandler{auctionService: auctionService, log: log}
}

// statusFor maps domain errors onto HTTP statuses. Unknown errors are
// internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAuctionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrAlreadySettled),
		errors.Is(err, models.ErrFundingTxUsed):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrInvalidConfiguration),
		errors.Is(err, models.ErrAuctionNotActive),
		errors.Is(err, models.ErrAuctionWindowClosed),
		errors.Is(err, models.ErrAuctionStillOpen),
		errors.Is(err, models.ErrBidTooLow),
		errors.Is(err, models.ErrNoPendingReturn),
		errors.Is(err, models.ErrNoPriceFeed):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrCurrencyTransferFailed),
		errors.Is(err, models.ErrAssetTransferFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *AuctionHandler) respondErr(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
}

func parseAuctionID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.ErrAuctionNotFound
	}
	return id, nil
}

func (h *AuctionHandler) CreateAuction(c *fiber.Ctx) error {
	var req dto.CreateAuctionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	assetID, err := decimal.NewFromString(req.AssetID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid asset_id"})
	}
	reserve, err := decimal.NewFromString(req.ReservePrice)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid reserve_price"})
	}

	auction, err := h.auctionService.Create(c.Context(), services.CreateAuctionParams{
		Seller:           middleware.GetWalletAddress(c),
		AssetContract:    req.AssetContract,
		AssetID:          assetID,
		CurrencyKind:     req.CurrencyKind,
		CurrencyContract: req.CurrencyContract,
		ReservePrice:     reserve,
		Duration:         time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		return h.respondErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: auction})
}

func (h *AuctionHandler) GetAuction(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	auction, err := h.auctionService.GetAuction(c.Context(), id)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: auction})
}

func (h *AuctionHandler) ListAuctions(c *fiber.Ctx) error {
	filter := repositories.AuctionFilter{Limit: 20}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("seller"); v != "" {
		filter.Seller = &v
	}

	auctions, err := h.auctionService.ListAuctions(c.Context(), filter)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: auctions})
}

func (h *AuctionHandler) PlaceBid(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	var req dto.PlaceBidRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	amount := decimal.Zero
	if req.Amount != "" {
		if amount, err = decimal.NewFromString(req.Amount); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid amount"})
		}
	}

	bid, err := h.auctionService.PlaceBid(c.Context(), services.PlaceBidParams{
		AuctionID:     id,
		Bidder:        middleware.GetWalletAddress(c),
		Amount:        amount,
		FundingTxHash: req.FundingTxHash,
	})
	if err != nil {
		return h.respondErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: bid})
}

func (h *AuctionHandler) ListBids(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	bids, err := h.auctionService.ListBids(c.Context(), id, limit)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: bids})
}

func (h *AuctionHandler) Withdraw(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	caller := middleware.GetWalletAddress(c)
	amount, payoutTx, err := h.auctionService.Withdraw(c.Context(), id, caller)
	if err != nil {
		return h.respondErr(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.WithdrawResponse{
		AuctionID: id,
		Amount:    amount.String(),
		PayoutTx:  payoutTx,
	}})
}

func (h *AuctionHandler) GetPendingReturn(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	bidder := c.Params("bidder")
	amount, err := h.auctionService.PendingReturnOf(c.Context(), id, bidder)
	if err != nil {
		return h.respondErr(c, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PendingReturnResponse{
		AuctionID: id,
		Bidder:    bidder,
		Amount:    amount.String(),
	}})
}

func (h *AuctionHandler) ListMyPendingReturns(c *fiber.Ctx) error {
	returns, err := h.auctionService.PendingReturnsOf(c.Context(), middleware.GetWalletAddress(c))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: returns})
}

func (h *AuctionHandler) Settle(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	caller := middleware.GetWalletAddress(c)
	auction, err := h.auctionService.Settle(c.Context(), id, &caller, models.ActorTypeUser)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: auction})
}

func (h *AuctionHandler) GetEscrow(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	escrow, err := h.auctionService.GetEscrow(c.Context(), id)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: escrow})
}

func (h *AuctionHandler) GetAuditTrail(c *fiber.Ctx) error {
	id, err := parseAuctionID(c)
	if err != nil {
		return h.respondErr(c, err)
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := h.auctionService.AuditTrail(c.Context(), id, limit)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
