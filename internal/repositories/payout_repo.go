package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mx-auction/backend/internal/models"
)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

// Create records a payout intent inside the caller's transaction, so the
// intent and the ledger debit that funds it commit together.
func (r *PayoutRepo) Create(ctx context.Context, tx pgx.Tx, p *models.Payout) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payouts (auction_id, recipient, amount, status)
		VALUES ($1, $2, $3::numeric, $4)
		RETURNING id, created_at, updated_at
	`, p.AuctionID, p.Recipient, p.Amount.String(), models.PayoutStatusPending,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PayoutRepo) MarkSent(ctx context.Context, id uuid.UUID, txHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payouts SET status = $1, tx_hash = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.PayoutStatusSent, txHash, id, models.PayoutStatusPending)
	return err
}

func (r *PayoutRepo) MarkConfirmed(ctx context.Context, id uuid.UUID, txHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payouts SET status = $1, tx_hash = $2, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)
	`, models.PayoutStatusConfirmed, txHash, id, models.PayoutStatusPending, models.PayoutStatusSent)
	return err
}

// MarkFailed flips an unresolved payout to failed. Returns false when the
// row was already resolved, so the caller credits the amount back at most
// once.
func (r *PayoutRepo) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payouts SET status = $1, updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)
	`, models.PayoutStatusFailed, id, models.PayoutStatusPending, models.PayoutStatusSent)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetUnresolved lists payouts awaiting reconciliation: sent ones whose
// receipt was never observed, and pending ones old enough that the process
// must have died between commit and broadcast.
func (r *PayoutRepo) GetUnresolved(ctx context.Context, pendingAfter time.Duration, limit int) ([]models.Payout, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, auction_id, recipient, amount::text, status, tx_hash, created_at, updated_at
		FROM payouts
		WHERE status = $1
		   OR (status = $2 AND updated_at < now() - make_interval(secs => $3))
		ORDER BY created_at ASC LIMIT $4
	`, models.PayoutStatusSent, models.PayoutStatusPending, pendingAfter.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var (
			p      models.Payout
			amount string
		)
		if err := rows.Scan(&p.ID, &p.AuctionID, &p.Recipient, &amount, &p.Status, &p.TxHash, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
