package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actor types.
const (
	ActorTypeUser   = "user"
	ActorTypeOwner  = "owner"
	ActorTypeSystem = "system"
)

type AuditLog struct {
	ID        uuid.UUID `json:"id"`
	Actor     *string   `json:"actor,omitempty"` // wallet address, empty for system
	ActorType string    `json:"actor_type"`      // user/owner/system
	Action    string    `json:"action"`
	AuctionID *int64    `json:"auction_id,omitempty"`
	Meta      any       `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
