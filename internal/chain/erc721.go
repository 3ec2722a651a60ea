package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Erc721Contract is the non-fungible-asset collaborator. The seller approves
// the operator before listing; custody moves with TransferFrom.
type Erc721Contract interface {
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	TransferFrom(ctx context.Context, from, to common.Address, tokenID *big.Int) (string, error)
}

type erc721 struct {
	client Client
	addr   common.Address
}

func NewErc721(client Client, addr common.Address) Erc721Contract {
	return &erc721{client: client, addr: addr}
}

func (e *erc721) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	unpacked, err := e.client.Call(ctx, e.addr, ERC721ABI, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return unpacked[0].(common.Address), nil
}

func (e *erc721) GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	unpacked, err := e.client.Call(ctx, e.addr, ERC721ABI, "getApproved", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return unpacked[0].(common.Address), nil
}

func (e *erc721) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	unpacked, err := e.client.Call(ctx, e.addr, ERC721ABI, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return unpacked[0].(bool), nil
}

func (e *erc721) TransferFrom(ctx context.Context, from, to common.Address, tokenID *big.Int) (string, error) {
	data, err := ERC721ABI.Pack("transferFrom", from, to, tokenID)
	if err != nil {
		return "", fmt.Errorf("pack transferFrom: %w", err)
	}
	return e.client.Transact(ctx, e.addr, nil, data)
}
