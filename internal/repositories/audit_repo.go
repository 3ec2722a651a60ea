package repositories

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mx-auction/backend/internal/models"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry *models.AuditLog) error {
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO audit_log (actor, actor_type, action, auction_id, meta)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, entry.Actor, entry.ActorType, entry.Action, entry.AuctionID, meta,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *AuditRepo) GetByAuction(ctx context.Context, auctionID int64, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor, actor_type, action, auction_id, meta, created_at
		FROM audit_log WHERE auction_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, auctionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var (
			e    models.AuditLog
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.ActorType, &e.Action, &e.AuctionID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			var decoded map[string]any
			if err := json.Unmarshal(meta, &decoded); err == nil {
				e.Meta = decoded
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
