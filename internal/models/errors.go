package models

import "errors"

var (
	ErrInvalidConfiguration   = errors.New("invalid auction configuration")
	ErrAuctionNotFound        = errors.New("auction not found")
	ErrAuctionNotActive       = errors.New("auction is not active")
	ErrAuctionWindowClosed    = errors.New("auction bidding window is closed")
	ErrAuctionStillOpen       = errors.New("auction bidding window is still open")
	ErrAlreadySettled         = errors.New("auction is already settled")
	ErrBidTooLow              = errors.New("bid is below reserve or does not beat the current highest bid")
	ErrCurrencyTransferFailed = errors.New("currency transfer failed")
	ErrAssetTransferFailed    = errors.New("asset transfer failed")
	ErrNoPendingReturn        = errors.New("no pending return to withdraw")
	ErrUnauthorized           = errors.New("caller is not authorized")
	ErrFundingTxUsed          = errors.New("funding transaction already used")
	ErrNoPriceFeed            = errors.New("no price feed bound for currency kind")
)
