package dto

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type AuthNonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

type AuthResponse struct {
	Token         string `json:"token"`
	WalletAddress string `json:"wallet_address"`
}

type WithdrawResponse struct {
	AuctionID int64  `json:"auction_id"`
	Amount    string `json:"amount"`
	PayoutTx  string `json:"payout_tx"`
}

type PendingReturnResponse struct {
	AuctionID int64  `json:"auction_id"`
	Bidder    string `json:"bidder"`
	Amount    string `json:"amount"`
}
