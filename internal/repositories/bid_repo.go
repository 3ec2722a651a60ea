package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mx-auction/backend/internal/models"
)

const pgUniqueViolation = "23505"

type BidRepo struct {
	pool *pgxpool.Pool
}

func NewBidRepo(pool *pgxpool.Pool) *BidRepo {
	return &BidRepo{pool: pool}
}

// Create records an accepted bid. A funding transaction hash already used by
// another bid or converted into a funding credit maps to ErrFundingTxUsed:
// one deposit can back one bid only.
func (r *BidRepo) Create(ctx context.Context, tx pgx.Tx, b *models.Bid) error {
	if b.FundingTxHash != nil {
		var credited bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM funding_credits WHERE tx_hash = $1)
		`, *b.FundingTxHash).Scan(&credited); err != nil {
			return err
		}
		if credited {
			return models.ErrFundingTxUsed
		}
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO bids (auction_id, bidder, amount, funding_tx_hash)
		VALUES ($1, $2, $3::numeric, $4)
		RETURNING id, created_at
	`, b.AuctionID, b.Bidder, b.Amount.String(), b.FundingTxHash,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.ErrFundingTxUsed
		}
		return err
	}
	return nil
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID int64, limit int) ([]models.Bid, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, auction_id, bidder, amount::text, funding_tx_hash, created_at
		FROM bids WHERE auction_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, auctionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var (
			b      models.Bid
			amount string
		)
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.Bidder, &amount, &b.FundingTxHash, &b.CreatedAt); err != nil {
			return nil, err
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}
