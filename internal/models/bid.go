package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is one accepted bid. FundingTxHash is set for native-currency bids and
// is unique across all bids: a single on-chain deposit can back exactly one
// bid.
type Bid struct {
	ID            uuid.UUID       `json:"id"`
	AuctionID     int64           `json:"auction_id"`
	Bidder        string          `json:"bidder"`
	Amount        decimal.Decimal `json:"amount"`
	FundingTxHash *string         `json:"funding_tx_hash,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
