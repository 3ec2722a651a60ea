package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AggregatorContract reads a Chainlink-style price feed.
type AggregatorContract interface {
	Decimals(ctx context.Context) (uint8, error)
	// LatestRoundData returns the raw answer and the time it was updated.
	LatestRoundData(ctx context.Context) (*big.Int, time.Time, error)
}

type aggregator struct {
	client Client
	addr   common.Address
}

func NewAggregator(client Client, addr common.Address) AggregatorContract {
	return &aggregator{client: client, addr: addr}
}

func (a *aggregator) Decimals(ctx context.Context) (uint8, error) {
	unpacked, err := a.client.Call(ctx, a.addr, AggregatorABI, "decimals")
	if err != nil {
		return 0, err
	}
	return unpacked[0].(uint8), nil
}

func (a *aggregator) LatestRoundData(ctx context.Context) (*big.Int, time.Time, error) {
	unpacked, err := a.client.Call(ctx, a.addr, AggregatorABI, "latestRoundData")
	if err != nil {
		return nil, time.Time{}, err
	}
	answer := unpacked[1].(*big.Int)
	updatedAt := unpacked[3].(*big.Int)
	return answer, time.Unix(updatedAt.Int64(), 0), nil
}
