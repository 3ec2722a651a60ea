package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/http/dto"
	"github.com/mx-auction/backend/internal/middleware"
	"github.com/mx-auction/backend/internal/services"
)

type FeedHandler struct {
	oracleService *services.OracleService
	log           *zap.Logger
}

func NewFeedHandler(oracleService *services.OracleService, log *zap.Logger) *FeedHandler {
	return &FeedHandler{oracleService: oracleService, log: log}
}

func (h *FeedHandler) SetPriceFeed(c *fiber.Ctx) error {
	var req dto.SetPriceFeedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	binding, err := h.oracleService.SetPriceFeed(c.Context(), middleware.GetWalletAddress(c), c.Params("kind"), req.FeedAddress)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: binding})
}

func (h *FeedHandler) ListFeeds(c *fiber.Ctx) error {
	bindings, err := h.oracleService.ListFeeds(c.Context())
	if err != nil {
		h.log.Error("list feeds failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: bindings})
}

func (h *FeedHandler) GetPrice(c *fiber.Ctx) error {
	reading, err := h.oracleService.Read(c.Context(), c.Params("kind"))
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: reading})
}

func (h *FeedHandler) respondErr(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error()})
}
