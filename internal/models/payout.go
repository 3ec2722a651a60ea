package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payout statuses. The intent row commits together with the ledger debit,
// before anything is broadcast: pending -> sent -> confirmed, or failed when
// the send definitively did not happen, in which case the debited amount is
// credited back. A row stuck in pending or sent is reconciled by the worker.
const (
	PayoutStatusPending   = "pending"
	PayoutStatusSent      = "sent"
	PayoutStatusConfirmed = "confirmed"
	PayoutStatusFailed    = "failed"
)

// Payout is one intended outbound transfer of auction-denominated funds,
// either a refund withdrawal or seller proceeds.
type Payout struct {
	ID        uuid.UUID       `json:"id"`
	AuctionID int64           `json:"auction_id"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	TxHash    *string         `json:"tx_hash,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
