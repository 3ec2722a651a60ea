package events

import "context"

// Event types published on the auction stream.
const (
	EventAuctionCreated   = "auction_created"
	EventBidPlaced        = "bid_placed"
	EventBidOutbid        = "bid_outbid"
	EventRefundWithdrawn  = "refund_withdrawn"
	EventAuctionSettled   = "auction_settled"
	EventAssetReleased    = "asset_released"
	EventPayoutDeferred   = "payout_deferred" // seller payout converted to pending return
	EventPriceFeedUpdated = "price_feed_updated"
)

const StreamAuction = "events:auction"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
