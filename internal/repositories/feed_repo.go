package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mx-auction/backend/internal/models"
)

type FeedRepo struct {
	pool *pgxpool.Pool
}

func NewFeedRepo(pool *pgxpool.Pool) *FeedRepo {
	return &FeedRepo{pool: pool}
}

func (r *FeedRepo) Upsert(ctx context.Context, b *models.PriceFeedBinding) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO price_feeds (currency_kind, feed_address, decimals, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (currency_kind)
		DO UPDATE SET feed_address = EXCLUDED.feed_address, decimals = EXCLUDED.decimals,
		              updated_by = EXCLUDED.updated_by, updated_at = now()
		RETURNING updated_at
	`, b.CurrencyKind, b.FeedAddress, b.Decimals, b.UpdatedBy).Scan(&b.UpdatedAt)
}

func (r *FeedRepo) Get(ctx context.Context, currencyKind string) (*models.PriceFeedBinding, error) {
	var b models.PriceFeedBinding
	err := r.pool.QueryRow(ctx, `
		SELECT currency_kind, feed_address, decimals, updated_by, updated_at
		FROM price_feeds WHERE currency_kind = $1
	`, currencyKind).Scan(&b.CurrencyKind, &b.FeedAddress, &b.Decimals, &b.UpdatedBy, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNoPriceFeed
		}
		return nil, err
	}
	return &b, nil
}

func (r *FeedRepo) List(ctx context.Context) ([]models.PriceFeedBinding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT currency_kind, feed_address, decimals, updated_by, updated_at
		FROM price_feeds ORDER BY currency_kind
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []models.PriceFeedBinding
	for rows.Next() {
		var b models.PriceFeedBinding
		if err := rows.Scan(&b.CurrencyKind, &b.FeedAddress, &b.Decimals, &b.UpdatedBy, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}
