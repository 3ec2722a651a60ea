package auth

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifySignature checks a personal_sign signature over message against the
// claimed signer address.
func VerifySignature(message []byte, signature, signer string) (bool, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}

	recovered, err := ecRecover(accounts.TextHash(message), sig)
	if err != nil {
		return false, err
	}

	claimed := common.HexToAddress(signer)
	return bytes.Equal(claimed.Bytes(), recovered.Bytes()), nil
}

// ecRecover returns the address that produced the signature. Accepts both
// 0/1 and 27/28 recovery id encodings of eth_sign responses.
func ecRecover(hash []byte, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes long", crypto.SignatureLength)
	}

	sig = bytes.Clone(sig)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid signature recovery id")
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
