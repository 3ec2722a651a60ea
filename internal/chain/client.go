package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

var (
	ErrTxNotFound    = errors.New("transaction not found")
	ErrTxPending     = errors.New("transaction not yet mined")
	ErrTxReverted    = errors.New("transaction reverted")
	ErrNotPlainValue = errors.New("not a plain value transfer")
	// ErrTxOutcomeUnknown means the transaction was broadcast but its receipt
	// could not be observed. The transfer may still land; callers must not
	// treat this as a definite failure.
	ErrTxOutcomeUnknown = errors.New("transaction outcome unknown")
)

// NativeTransfer is a confirmed plain value transfer observed on-chain,
// used to verify native-currency bid funding.
type NativeTransfer struct {
	Hash  string
	From  common.Address
	To    common.Address
	Value *big.Int
}

type Client interface {
	// Call performs a read-only contract call.
	Call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error)
	// Transact signs and sends a transaction from the operator wallet and
	// waits for it to be mined. Once the send succeeded the returned hash is
	// always set, even on error: a reverted receipt yields ErrTxReverted, a
	// failed wait yields ErrTxOutcomeUnknown. An empty hash means the
	// transaction never entered the mempool.
	Transact(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error)
	// NativeTransfer looks up a mined value transfer by hash.
	NativeTransfer(ctx context.Context, txHash string) (*NativeTransfer, error)
	// ConfirmTx reports the fate of a previously broadcast transaction:
	// nil for mined-successful, ErrTxReverted, ErrTxPending or ErrTxNotFound.
	ConfirmTx(ctx context.Context, txHash string) error
	// Operator is the engine's hot wallet address: the custodian for escrowed
	// assets and the recipient of native bid deposits.
	Operator() common.Address
}

type ClientCfg struct {
	RPCURL      string
	ChainID     int64
	OperatorKey string // hex-encoded secp256k1 private key
}

type client struct {
	eth      *ethclient.Client
	chainID  *big.Int
	signer   types.Signer
	key      *ecdsa.PrivateKey
	operator common.Address
	log      *zap.Logger

	mu sync.Mutex // serializes nonce assignment across sends
}

func NewClient(ctx context.Context, cfg ClientCfg, log *zap.Logger) (Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.RPCURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	c := &client{
		eth:      eth,
		chainID:  chainID,
		signer:   types.LatestSignerForChainID(chainID),
		key:      key,
		operator: crypto.PubkeyToAddress(key.PublicKey),
		log:      log,
	}

	log.Info("chain client ready",
		zap.String("rpc", cfg.RPCURL),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("operator", c.operator.Hex()),
	)
	return c, nil
}

func (c *client) Operator() common.Address {
	return c.operator
}

func (c *client) Call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}

	unpacked, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return unpacked, nil
}

func (c *client) Transact(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	c.mu.Lock()
	signed, err := c.buildAndSend(ctx, to, value, data)
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	hash := signed.Hash().Hex()
	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return hash, fmt.Errorf("%w: %s: %v", ErrTxOutcomeUnknown, hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return hash, fmt.Errorf("%w: %s", ErrTxReverted, hash)
	}

	c.log.Debug("transaction mined",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return signed.Hash().Hex(), nil
}

func (c *client) buildAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.operator)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.operator,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

func (c *client) ConfirmTx(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)

	_, pending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ErrTxNotFound
		}
		return fmt.Errorf("transaction by hash: %w", err)
	}
	if pending {
		return ErrTxPending
	}

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("transaction receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ErrTxReverted
	}
	return nil
}

func (c *client) NativeTransfer(ctx context.Context, txHash string) (*NativeTransfer, error) {
	hash := common.HexToHash(txHash)

	tx, pending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("transaction by hash: %w", err)
	}
	if pending {
		return nil, ErrTxPending
	}
	if tx.To() == nil || len(tx.Data()) != 0 {
		return nil, ErrNotPlainValue
	}

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("transaction receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, ErrTxReverted
	}

	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}

	return &NativeTransfer{
		Hash:  hash.Hex(),
		From:  from,
		To:    *tx.To(),
		Value: tx.Value(),
	}, nil
}
