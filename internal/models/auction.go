package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Auction statuses
const (
	AuctionStatusActive  = "active"
	AuctionStatusSettled = "settled"
)

// Currency kinds. Each auction is denominated in exactly one currency;
// bids are never converted or compared across kinds.
const (
	CurrencyNative = "native"
	CurrencyToken  = "token"
)

// Valid state transitions: from -> []to. Settled is terminal.
var ValidAuctionTransitions = map[string][]string{
	AuctionStatusActive:  {AuctionStatusSettled},
	AuctionStatusSettled: {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidAuctionTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsValidCurrencyKind(kind string) bool {
	return kind == CurrencyNative || kind == CurrencyToken
}

type Auction struct {
	ID               int64           `json:"id"`
	Seller           string          `json:"seller"`
	AssetContract    string          `json:"asset_contract"`
	AssetID          decimal.Decimal `json:"asset_id"`
	CurrencyKind     string          `json:"currency_kind"` // native / token
	CurrencyContract *string         `json:"currency_contract,omitempty"`
	ReservePrice     decimal.Decimal `json:"reserve_price"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	HighestBidder    *string         `json:"highest_bidder,omitempty"`
	HighestBid       decimal.Decimal `json:"highest_bid"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (a *Auction) IsNative() bool {
	return a.CurrencyKind == CurrencyNative
}

// ValidateAuctionConfig checks creation parameters. Token auctions require a
// currency contract, native auctions must not carry one.
func ValidateAuctionConfig(currencyKind string, currencyContract *string, reservePrice decimal.Decimal, duration time.Duration) error {
	if duration <= 0 {
		return ErrInvalidConfiguration
	}
	if reservePrice.IsNegative() {
		return ErrInvalidConfiguration
	}
	switch currencyKind {
	case CurrencyNative:
		if currencyContract != nil {
			return ErrInvalidConfiguration
		}
	case CurrencyToken:
		if currencyContract == nil || *currencyContract == "" {
			return ErrInvalidConfiguration
		}
	default:
		return ErrInvalidConfiguration
	}
	return nil
}

// CanAcceptBid applies the acceptance rules: the auction is active, now is
// inside [StartTime, EndTime], the amount meets the reserve and strictly
// improves on the current highest bid. Equal bids are rejected so the leader
// is always unambiguous.
func (a *Auction) CanAcceptBid(amount decimal.Decimal, now time.Time) error {
	if a.Status != AuctionStatusActive {
		return ErrAuctionNotActive
	}
	if now.Before(a.StartTime) || now.After(a.EndTime) {
		return ErrAuctionWindowClosed
	}
	if amount.LessThan(a.ReservePrice) {
		return ErrBidTooLow
	}
	if !amount.GreaterThan(a.HighestBid) {
		return ErrBidTooLow
	}
	return nil
}

// DisplacedBid is the previous leading bid that a newly accepted bid pushed
// into the pending-return ledger.
type DisplacedBid struct {
	Bidder string
	Amount decimal.Decimal
}

// ApplyBid validates and installs a new leading bid, returning the displaced
// leader (nil for the first qualifying bid).
func (a *Auction) ApplyBid(bidder string, amount decimal.Decimal, now time.Time) (*DisplacedBid, error) {
	if err := a.CanAcceptBid(amount, now); err != nil {
		return nil, err
	}
	var displaced *DisplacedBid
	if a.HighestBidder != nil {
		displaced = &DisplacedBid{Bidder: *a.HighestBidder, Amount: a.HighestBid}
	}
	b := bidder
	a.HighestBidder = &b
	a.HighestBid = amount
	return displaced, nil
}

// CanSettle gates the Active -> Settled transition: only after the window has
// closed, and never twice.
func (a *Auction) CanSettle(now time.Time) error {
	switch a.Status {
	case AuctionStatusSettled:
		return ErrAlreadySettled
	case AuctionStatusActive:
		if !now.After(a.EndTime) {
			return ErrAuctionStillOpen
		}
		return nil
	default:
		return ErrAuctionNotActive
	}
}

// SettlementPlan describes the transfers settlement performs: where the
// escrowed asset goes, and whether (and how much) the seller is owed.
type SettlementPlan struct {
	AssetRecipient string
	PaySeller      bool
	Proceeds       decimal.Decimal
}

// Settlement returns the plan for this auction: with no qualifying bid the
// asset goes back to the seller and no funds move; otherwise the asset goes
// to the highest bidder and the winning amount to the seller.
func (a *Auction) Settlement() SettlementPlan {
	if a.HighestBidder == nil {
		return SettlementPlan{AssetRecipient: a.Seller}
	}
	return SettlementPlan{
		AssetRecipient: *a.HighestBidder,
		PaySeller:      true,
		Proceeds:       a.HighestBid,
	}
}
