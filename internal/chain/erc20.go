package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Erc20Contract is the fungible-currency collaborator: bidders pre-approve
// the operator, the engine pulls bids with TransferFrom and pays out with
// Transfer.
type Erc20Contract interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context) (uint8, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (string, error)
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) (string, error)
}

type erc20 struct {
	client Client
	addr   common.Address
}

func NewErc20(client Client, addr common.Address) Erc20Contract {
	return &erc20{client: client, addr: addr}
}

func (e *erc20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	unpacked, err := e.client.Call(ctx, e.addr, ERC20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return unpacked[0].(*big.Int), nil
}

func (e *erc20) Decimals(ctx context.Context) (uint8, error) {
	unpacked, err := e.client.Call(ctx, e.addr, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	return unpacked[0].(uint8), nil
}

func (e *erc20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	unpacked, err := e.client.Call(ctx, e.addr, ERC20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return unpacked[0].(*big.Int), nil
}

func (e *erc20) Transfer(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	data, err := ERC20ABI.Pack("transfer", to, amount)
	if err != nil {
		return "", fmt.Errorf("pack transfer: %w", err)
	}
	return e.client.Transact(ctx, e.addr, nil, data)
}

func (e *erc20) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) (string, error) {
	data, err := ERC20ABI.Pack("transferFrom", from, to, amount)
	if err != nil {
		return "", fmt.Errorf("pack transferFrom: %w", err)
	}
	return e.client.Transact(ctx, e.addr, nil, data)
}
