package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Escrow statuses. held -> releasing -> released; a failed release send puts
// the row back to held so the worker can retry. The status flip is the
// exactly-once guard for the asset transfer.
const (
	EscrowStatusHeld      = "held"
	EscrowStatusReleasing = "releasing"
	EscrowStatusReleased  = "released"
)

// EscrowedAsset records custody of the auctioned non-fungible asset for the
// lifetime of one auction.
type EscrowedAsset struct {
	ID            uuid.UUID       `json:"id"`
	AuctionID     int64           `json:"auction_id"`
	AssetContract string          `json:"asset_contract"`
	AssetID       decimal.Decimal `json:"asset_id"`
	DepositTxHash string          `json:"deposit_tx_hash"`
	Status        string          `json:"status"`
	ReleasedTo    *string         `json:"released_to,omitempty"`
	ReleaseTxHash *string         `json:"release_tx_hash,omitempty"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
