// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrInvalidKey is returned for secrets that do not decode into a 64-byte keypair.
var ErrInvalidKey = errors.New("invalid private key")

// Wallet представляет кошелёк оператора.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet создаёт кошелёк из base58-строки или списка байт через запятую ("12,34,...").
func NewWallet(secret string) (*Wallet, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidKey)
	}

	var (
		keyBytes []byte
		err      error
	)
	if strings.Contains(secret, ",") {
		keyBytes, err = parseByteList(secret)
	} else {
		keyBytes, err = base58.Decode(secret)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(keyBytes) != 64 {
		return nil, fmt.Errorf("%w: expected 64 bytes, got %d", ErrInvalidKey, len(keyBytes))
	}

	privateKey := solana.PrivateKey(keyBytes)
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

func parseByteList(secret string) ([]byte, error) {
	secret = strings.Trim(secret, "[] ")
	parts := strings.Split(secret, ",")
	out := make([]byte, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("byte %d: %w", i, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// SignTransaction подписывает транзакцию с помощью приватного ключа кошелька.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(w.Signer)
	return err
}

// Signer is a solana-go private key getter that only knows this wallet.
func (w *Wallet) Signer(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(w.PublicKey) {
		return &w.PrivateKey
	}
	return nil
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
