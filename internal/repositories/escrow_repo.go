package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mx-auction/backend/internal/models"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

func (r *EscrowRepo) Create(ctx context.Context, tx pgx.Tx, e *models.EscrowedAsset) error {
	return tx.QueryRow(ctx, `
		INSERT INTO escrow_assets (auction_id, asset_contract, asset_id, deposit_tx_hash, status)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING id, created_at
	`, e.AuctionID, e.AssetContract, e.AssetID.String(), e.DepositTxHash, models.EscrowStatusHeld,
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *EscrowRepo) GetByAuctionID(ctx context.Context, auctionID int64) (*models.EscrowedAsset, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, auction_id, asset_contract, asset_id::text, deposit_tx_hash,
		       status, released_to, release_tx_hash, released_at, created_at
		FROM escrow_assets WHERE auction_id = $1
	`, auctionID))
}

// ClaimRelease flips held -> releasing. Returns false when another caller
// already claimed or completed the release, so the asset moves at most once.
func (r *EscrowRepo) ClaimRelease(ctx context.Context, auctionID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_assets SET status = $1 WHERE auction_id = $2 AND status = $3
	`, models.EscrowStatusReleasing, auctionID, models.EscrowStatusHeld)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) MarkReleased(ctx context.Context, auctionID int64, releasedTo, txHash string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_assets SET status = $1, released_to = $2, release_tx_hash = $3, released_at = $4
		WHERE auction_id = $5 AND status = $6
	`, models.EscrowStatusReleased, releasedTo, txHash, now, auctionID, models.EscrowStatusReleasing)
	return err
}

// ReleaseFailed puts a claimed asset back to held so the worker retries it.
func (r *EscrowRepo) ReleaseFailed(ctx context.Context, auctionID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_assets SET status = $1 WHERE auction_id = $2 AND status = $3
	`, models.EscrowStatusHeld, auctionID, models.EscrowStatusReleasing)
	return err
}

// GetHeldForSettled lists escrowed assets of settled auctions that are still
// held, i.e. releases that failed at settlement time and await retry.
func (r *EscrowRepo) GetHeldForSettled(ctx context.Context, limit int) ([]models.EscrowedAsset, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.auction_id, e.asset_contract, e.asset_id::text, e.deposit_tx_hash,
		       e.status, e.released_to, e.release_tx_hash, e.released_at, e.created_at
		FROM escrow_assets e
		JOIN auctions a ON a.id = e.auction_id
		WHERE e.status = $1 AND a.status = $2
		ORDER BY e.created_at ASC LIMIT $3
	`, models.EscrowStatusHeld, models.AuctionStatusSettled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []models.EscrowedAsset
	for rows.Next() {
		e, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *e)
	}
	return assets, rows.Err()
}

func (r *EscrowRepo) scanOne(row pgx.Row) (*models.EscrowedAsset, error) {
	e, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAuctionNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *EscrowRepo) scanRow(row pgx.Row) (*models.EscrowedAsset, error) {
	var (
		e       models.EscrowedAsset
		assetID string
	)
	err := row.Scan(&e.ID, &e.AuctionID, &e.AssetContract, &assetID, &e.DepositTxHash,
		&e.Status, &e.ReleasedTo, &e.ReleaseTxHash, &e.ReleasedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if e.AssetID, err = decimal.NewFromString(assetID); err != nil {
		return nil, err
	}
	return &e, nil
}
