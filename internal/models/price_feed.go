package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceFeedBinding maps a currency kind to the oracle contract supplying its
// USD price. Bindings are looked up at call time, never snapshotted onto
// auctions, and are mutable only by the owner role.
type PriceFeedBinding struct {
	CurrencyKind string    `json:"currency_kind"`
	FeedAddress  string    `json:"feed_address"`
	Decimals     int32     `json:"decimals"`
	UpdatedBy    string    `json:"updated_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PriceReading is one normalized oracle observation. A stale or zero reading
// is reported as-is; feed health never gates bidding or settlement.
type PriceReading struct {
	CurrencyKind string          `json:"currency_kind"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
	RawAnswer    string          `json:"raw_answer"`
	Decimals     int32           `json:"decimals"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Stale        bool            `json:"stale"`
}
