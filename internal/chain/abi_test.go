package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestABIMethodsDeclared(t *testing.T) {
	tests := []struct {
		name    string
		methods []string
	}{
		{"erc20", []string{"balanceOf", "decimals", "allowance", "transfer", "transferFrom"}},
		{"erc721", []string{"ownerOf", "getApproved", "isApprovedForAll", "transferFrom"}},
		{"aggregator", []string{"decimals", "latestRoundData"}},
	}

	abis := map[string]map[string]bool{
		"erc20":      methodSet(ERC20ABI.Methods),
		"erc721":     methodSet(ERC721ABI.Methods),
		"aggregator": methodSet(AggregatorABI.Methods),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, m := range tt.methods {
				if !abis[tt.name][m] {
					t.Errorf("%s ABI missing method %q", tt.name, m)
				}
			}
		})
	}
}

func methodSet(methods map[string]abi.Method) map[string]bool {
	set := make(map[string]bool, len(methods))
	for name := range methods {
		set[name] = true
	}
	return set
}

func TestErc20TransferFromPacking(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	amount := big.NewInt(300)

	data, err := ERC20ABI.Pack("transferFrom", from, to, amount)
	if err != nil {
		t.Fatalf("pack transferFrom: %v", err)
	}
	// 4-byte selector + three 32-byte words
	if len(data) != 4+3*32 {
		t.Errorf("packed length = %d, want %d", len(data), 4+3*32)
	}
	// transferFrom(address,address,uint256) selector
	want := [4]byte{0x23, 0xb8, 0x72, 0xdd}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("selector = %x, want %x", data[:4], want)
			break
		}
	}
}
