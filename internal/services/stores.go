package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mx-auction/backend/internal/models"
	"github.com/mx-auction/backend/internal/repositories"
)

// Persistence seams for the auction lifecycle, satisfied by the concrete
// repositories. Orchestration logic is tested against in-memory
// implementations of these.

type AuctionStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, a *models.Auction) error
	GetByID(ctx context.Context, id int64) (*models.Auction, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Auction, error)
	UpdateHighestBid(ctx context.Context, tx pgx.Tx, id int64, bidder string, amount decimal.Decimal) error
	MarkSettled(ctx context.Context, tx pgx.Tx, id int64) (bool, error)
	List(ctx context.Context, f repositories.AuctionFilter) ([]models.Auction, error)
	GetExpiredActive(ctx context.Context, limit int) ([]models.Auction, error)
}

type BidStore interface {
	Create(ctx context.Context, tx pgx.Tx, b *models.Bid) error
	ListByAuction(ctx context.Context, auctionID int64, limit int) ([]models.Bid, error)
}

type ReturnLedger interface {
	Increase(ctx context.Context, tx pgx.Tx, auctionID int64, bidder string, amount decimal.Decimal) error
	CreditFundingTx(ctx context.Context, tx pgx.Tx, auctionID int64, bidder, txHash string, amount decimal.Decimal) error
	TakeAll(ctx context.Context, tx pgx.Tx, auctionID int64, bidder string) (decimal.Decimal, error)
	Peek(ctx context.Context, auctionID int64, bidder string) (decimal.Decimal, error)
	ListByBidder(ctx context.Context, bidder string) ([]models.PendingReturn, error)
}

type EscrowStore interface {
	Create(ctx context.Context, tx pgx.Tx, e *models.EscrowedAsset) error
	GetByAuctionID(ctx context.Context, auctionID int64) (*models.EscrowedAsset, error)
	ClaimRelease(ctx context.Context, auctionID int64) (bool, error)
	MarkReleased(ctx context.Context, auctionID int64, releasedTo, txHash string) error
	ReleaseFailed(ctx context.Context, auctionID int64) error
	GetHeldForSettled(ctx context.Context, limit int) ([]models.EscrowedAsset, error)
}

type PayoutStore interface {
	Create(ctx context.Context, tx pgx.Tx, p *models.Payout) error
	MarkSent(ctx context.Context, id uuid.UUID, txHash string) error
	MarkConfirmed(ctx context.Context, id uuid.UUID, txHash string) error
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	GetUnresolved(ctx context.Context, pendingAfter time.Duration, limit int) ([]models.Payout, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry *models.AuditLog) error
	GetByAuction(ctx context.Context, auctionID int64, limit int) ([]models.AuditLog, error)
}

// PriceSource is the oracle seam the reserve sanity check reads through,
// satisfied by OracleService.
type PriceSource interface {
	Read(ctx context.Context, currencyKind string) (*models.PriceReading, error)
}
