package dto

type AuthNonceRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type AuthVerifyRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
}

type CreateAuctionRequest struct {
	AssetContract    string  `json:"asset_contract"`
	AssetID          string  `json:"asset_id"`
	CurrencyKind     string  `json:"currency_kind"`
	CurrencyContract *string `json:"currency_contract,omitempty"`
	ReservePrice     string  `json:"reserve_price"`
	DurationSeconds  int64   `json:"duration_seconds"`
}

type PlaceBidRequest struct {
	// Amount in base units, required for token auctions.
	Amount string `json:"amount,omitempty"`
	// FundingTxHash of the value transfer to the escrow wallet, required
	// for native auctions.
	FundingTxHash *string `json:"funding_tx_hash,omitempty"`
}

type SetPriceFeedRequest struct {
	FeedAddress string `json:"feed_address"`
}
