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

type PendingReturnRepo struct {
	pool *pgxpool.Pool
}

func NewPendingReturnRepo(pool *pgxpool.Pool) *PendingReturnRepo {
	return &PendingReturnRepo{pool: pool}
}

// Increase credits a refund to the bidder. Credits accumulate: a bidder
// displaced twice in the same auction holds the sum of both bids.
func (r *PendingReturnRepo) Increase(ctx context.Context, tx pgx.Tx, auctionID int64, bidder string, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO pending_returns (auction_id, bidder, amount, updated_at)
		VALUES ($1, $2, $3::numeric, now())
		ON CONFLICT (auction_id, bidder)
		DO UPDATE SET amount = pending_returns.amount + EXCLUDED.amount, updated_at = now()
	`, auctionID, bidder, amount.String())
	return err
}

// CreditFundingTx converts a verified native deposit whose bid was rejected
// into a pending-return credit for the bidder. The funding_credits row keeps
// the tx hash single-use; a hash already consumed by a bid or an earlier
// credit yields ErrFundingTxUsed.
func (r *PendingReturnRepo) CreditFundingTx(ctx context.Context, tx pgx.Tx, auctionID int64, bidder, txHash string, amount decimal.Decimal) error {
	var usedByBid bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM bids WHERE funding_tx_hash = $1)
	`, txHash).Scan(&usedByBid); err != nil {
		return err
	}
	if usedByBid {
		return models.ErrFundingTxUsed
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO funding_credits (tx_hash, auction_id, bidder, amount)
		VALUES ($1, $2, $3, $4::numeric)
	`, txHash, auctionID, bidder, amount.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.ErrFundingTxUsed
		}
		return err
	}

	return r.Increase(ctx, tx, auctionID, bidder, amount)
}

// TakeAll zeroes the bidder's credit inside the caller's transaction and
// returns the amount that was held. The row stays locked until the caller
// commits, so a concurrent withdrawal of the same credit blocks until the
// debit and the payout intent that spends it are durable together.
func (r *PendingReturnRepo) TakeAll(ctx context.Context, tx pgx.Tx, auctionID int64, bidder string) (decimal.Decimal, error) {
	var amount string
	err := tx.QueryRow(ctx, `
		WITH held AS (
			SELECT auction_id, bidder, amount FROM pending_returns
			WHERE auction_id = $1 AND bidder = $2 AND amount > 0
			FOR UPDATE
		)
		UPDATE pending_returns pr SET amount = 0, updated_at = now()
		FROM held
		WHERE pr.auction_id = held.auction_id AND pr.bidder = held.bidder
		RETURNING held.amount::text
	`, auctionID, bidder).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, models.ErrNoPendingReturn
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

func (r *PendingReturnRepo) Peek(ctx context.Context, auctionID int64, bidder string) (decimal.Decimal, error) {
	var amount string
	err := r.pool.QueryRow(ctx, `
		SELECT amount::text FROM pending_returns WHERE auction_id = $1 AND bidder = $2
	`, auctionID, bidder).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

func (r *PendingReturnRepo) ListByBidder(ctx context.Context, bidder string) ([]models.PendingReturn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT auction_id, bidder, amount::text, updated_at
		FROM pending_returns WHERE bidder = $1 AND amount > 0
		ORDER BY auction_id
	`, bidder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var returns []models.PendingReturn
	for rows.Next() {
		var (
			pr     models.PendingReturn
			amount string
		)
		if err := rows.Scan(&pr.AuctionID, &pr.Bidder, &amount, &pr.UpdatedAt); err != nil {
			return nil, err
		}
		if pr.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		returns = append(returns, pr)
	}
	return returns, rows.Err()
}
