package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingReturn is the refund owed to a bidder whose bid was displaced, keyed
// by (auction, bidder). Displacements accumulate; withdrawal drains the entry
// to zero exactly once. The current highest bidder never has a pending return
// for that auction.
type PendingReturn struct {
	AuctionID int64           `json:"auction_id"`
	Bidder    string          `json:"bidder"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}
