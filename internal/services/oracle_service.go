package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mx-auction/backend/internal/chain"
	"github.com/mx-auction/backend/internal/config"
	"github.com/mx-auction/backend/internal/events"
	"github.com/mx-auction/backend/internal/models"
	"github.com/mx-auction/backend/internal/repositories"
)

// OracleService binds Chainlink-style aggregator feeds to currency kinds and
// reads USD prices from them. Binding a feed is owner-only; reads are open.
type OracleService struct {
	cfg       *config.Config
	feeds     *repositories.FeedRepo
	audit     *repositories.AuditRepo
	chain     chain.Client
	publisher events.Publisher
	log       *zap.Logger
}

func NewOracleService(
	cfg *config.Config,
	feeds *repositories.FeedRepo,
	audit *repositories.AuditRepo,
	chainClient chain.Client,
	publisher events.Publisher,
	log *zap.Logger,
) *OracleService {
	return &OracleService{
		cfg:       cfg,
		feeds:     feeds,
		audit:     audit,
		chain:     chainClient,
		publisher: publisher,
		log:       log,
	}
}

// SetPriceFeed binds (or rebinds) a feed address for a currency kind. The
// feed's decimals are read from the contract itself rather than trusted from
// the caller.
func (s *OracleService) SetPriceFeed(ctx context.Context, actor, currencyKind, feedAddress string) (*models.PriceFeedBinding, error) {
	if !s.cfg.IsOwner(actor) {
		return nil, models.ErrUnauthorized
	}
	if !models.IsValidCurrencyKind(currencyKind) {
		return nil, models.ErrInvalidConfiguration
	}
	if !common.IsHexAddress(feedAddress) {
		return nil, models.ErrInvalidConfiguration
	}

	agg := chain.NewAggregator(s.chain, common.HexToAddress(feedAddress))
	decimals, err := agg.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("read feed decimals: %w", err)
	}

	binding := &models.PriceFeedBinding{
		CurrencyKind: currencyKind,
		FeedAddress:  common.HexToAddress(feedAddress).Hex(),
		Decimals:     int32(decimals),
		UpdatedBy:    actor,
	}
	if err := s.feeds.Upsert(ctx, binding); err != nil {
		return nil, fmt.Errorf("upsert price feed: %w", err)
	}

	if err := s.audit.Log(ctx, &models.AuditLog{
		Actor:     &actor,
		ActorType: models.ActorTypeOwner,
		Action:    "price_feed_updated",
		Meta: map[string]any{
			"currency_kind": currencyKind,
			"feed_address":  binding.FeedAddress,
			"decimals":      binding.Decimals,
		},
	}); err != nil {
		s.log.Error("failed to write audit entry", zap.Error(err))
	}

	if err := s.publisher.Publish(ctx, events.StreamAuction, events.Event{
		Type: events.EventPriceFeedUpdated,
		Payload: map[string]any{
			"currency_kind": currencyKind,
			"feed_address":  binding.FeedAddress,
		},
	}); err != nil {
		s.log.Error("failed to publish event", zap.Error(err))
	}

	s.log.Info("price feed bound",
		zap.String("currency_kind", currencyKind),
		zap.String("feed", binding.FeedAddress),
		zap.Int32("decimals", binding.Decimals),
	)
	return binding, nil
}

// Read returns the latest USD price for a currency kind, normalized by the
// feed's decimals. Returns ErrNoPriceFeed when no feed is bound.
func (s *OracleService) Read(ctx context.Context, currencyKind string) (*models.PriceReading, error) {
	binding, err := s.feeds.Get(ctx, currencyKind)
	if err != nil {
		return nil, err
	}

	agg := chain.NewAggregator(s.chain, common.HexToAddress(binding.FeedAddress))
	raw, updatedAt, err := agg.LatestRoundData(ctx)
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", binding.FeedAddress, err)
	}

	return &models.PriceReading{
		CurrencyKind: currencyKind,
		PriceUSD:     decimal.NewFromBigInt(raw, -binding.Decimals),
		RawAnswer:    raw.String(),
		Decimals:     binding.Decimals,
		UpdatedAt:    updatedAt,
		Stale:        time.Since(updatedAt) > s.cfg.FeedStaleAfter,
	}, nil
}

func (s *OracleService) ListFeeds(ctx context.Context) ([]models.PriceFeedBinding, error) {
	return s.feeds.List(ctx)
}
