package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mx-auction/backend/internal/models"
)

type AuctionRepo struct {
	pool *pgxpool.Pool
}

func NewAuctionRepo(pool *pgxpool.Pool) *AuctionRepo {
	return &AuctionRepo{pool: pool}
}

const auctionColumns = `
	id, seller, asset_contract, asset_id::text, currency_kind, currency_contract,
	reserve_price::text, start_time, end_time, highest_bidder, highest_bid::text,
	status, created_at, updated_at`

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var (
		a            models.Auction
		assetID      string
		reservePrice string
		highestBid   string
	)
	err := row.Scan(&a.ID, &a.Seller, &a.AssetContract, &assetID, &a.CurrencyKind, &a.CurrencyContract,
		&reservePrice, &a.StartTime, &a.EndTime, &a.HighestBidder, &highestBid,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAuctionNotFound
		}
		return nil, err
	}
	if a.AssetID, err = decimal.NewFromString(assetID); err != nil {
		return nil, fmt.Errorf("parse asset_id: %w", err)
	}
	if a.ReservePrice, err = decimal.NewFromString(reservePrice); err != nil {
		return nil, fmt.Errorf("parse reserve_price: %w", err)
	}
	if a.HighestBid, err = decimal.NewFromString(highestBid); err != nil {
		return nil, fmt.Errorf("parse highest_bid: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) Create(ctx context.Context, tx pgx.Tx, a *models.Auction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO auctions (seller, asset_contract, asset_id, currency_kind, currency_contract,
		                      reserve_price, start_time, end_time, highest_bid, status)
		VALUES ($1, $2, $3::numeric, $4, $5, $6::numeric, $7, $8, 0, $9)
		RETURNING id, created_at, updated_at
	`, a.Seller, a.AssetContract, a.AssetID.String(), a.CurrencyKind, a.CurrencyContract,
		a.ReservePrice.String(), a.StartTime, a.EndTime, a.Status,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *AuctionRepo) GetByID(ctx context.Context, id int64) (*models.Auction, error) {
	return scanAuction(r.pool.QueryRow(ctx, `SELECT`+auctionColumns+` FROM auctions WHERE id = $1`, id))
}

// GetByIDForUpdate locks the auction row for the duration of the caller's
// transaction. All state-mutating operations on one auction funnel through
// this lock, which is what makes them totally ordered.
func (r *AuctionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Auction, error) {
	return scanAuction(tx.QueryRow(ctx, `SELECT`+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id))
}

func (r *AuctionRepo) UpdateHighestBid(ctx context.Context, tx pgx.Tx, id int64, bidder string, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		UPDATE auctions SET highest_bidder = $1, highest_bid = $2::numeric, updated_at = now()
		WHERE id = $3
	`, bidder, amount.String(), id)
	return err
}

// MarkSettled performs the guarded Active -> Settled transition. Returns
// false when the auction was not active, so a second settle performs nothing.
func (r *AuctionRepo) MarkSettled(ctx context.Context, tx pgx.Tx, id int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE auctions SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.AuctionStatusSettled, id, models.AuctionStatusActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type AuctionFilter struct {
	Status *string
	Seller *string
	Limit  int
	Offset int
}

func (r *AuctionRepo) List(ctx context.Context, f AuctionFilter) ([]models.Auction, error) {
	query := `SELECT` + auctionColumns + ` FROM auctions`
	args := []any{}
	argIdx := 1

	if f.Status != nil {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Seller != nil {
		if argIdx == 1 {
			query += " WHERE "
		} else {
			query += " AND "
		}
		query += fmt.Sprintf("seller = $%d", argIdx)
		args = append(args, *f.Seller)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	return auctions, rows.Err()
}

// GetExpiredActive returns active auctions whose bidding window has closed,
// for the settlement sweep.
func (r *AuctionRepo) GetExpiredActive(ctx context.Context, limit int) ([]models.Auction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+auctionColumns+` FROM auctions
		WHERE status = $1 AND end_time < now()
		ORDER BY end_time ASC LIMIT $2
	`, models.AuctionStatusActive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	return auctions, rows.Err()
}

func (r *AuctionRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
