package auth

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func signMessage(t *testing.T, message []byte) (signature string, signer string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// wallets return V as 27/28
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestVerifySignature(t *testing.T) {
	message := []byte("mx-auction login nonce: 4f2a9c")
	signature, signer := signMessage(t, message)

	ok, err := VerifySignature(message, signature, signer)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Error("valid signature rejected")
	}
}

func TestVerifySignatureWrongSigner(t *testing.T) {
	message := []byte("mx-auction login nonce: 4f2a9c")
	signature, _ := signMessage(t, message)

	ok, err := VerifySignature(message, signature, "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Error("signature accepted for wrong signer")
	}
}

func TestVerifySignatureWrongMessage(t *testing.T) {
	signature, signer := signMessage(t, []byte("nonce-one"))

	ok, err := VerifySignature([]byte("nonce-two"), signature, signer)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Error("signature accepted for different message")
	}
}

func TestVerifySignatureMalformed(t *testing.T) {
	if _, err := VerifySignature([]byte("msg"), "0x1234", "0x1111111111111111111111111111111111111111"); err == nil {
		t.Error("expected error for truncated signature")
	}
	if _, err := VerifySignature([]byte("msg"), "not-hex", "0x1111111111111111111111111111111111111111"); err == nil {
		t.Error("expected error for non-hex signature")
	}
}

func TestGenerateAndParseJWT(t *testing.T) {
	secret := "test-secret"
	addr := "0x2222222222222222222222222222222222222222"

	token, err := GenerateJWT(secret, addr, 0)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT(secret, token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.WalletAddress != addr {
		t.Errorf("wallet address = %s, want %s", claims.WalletAddress, addr)
	}

	if _, err := ParseJWT("other-secret", token); err == nil {
		t.Error("token accepted with wrong secret")
	}
}
