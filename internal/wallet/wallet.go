// Package wallet manages the bot's trading keypairs: generation, secret key
// encoding, associated token address derivation and SOL funding flows.
package wallet

import (
	"fmt"

	"github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"
)

// Keypair wraps an ed25519 account used to sign transactions.
type Keypair struct {
	account types.Account
}

// Generate creates a fresh random keypair.
func Generate() Keypair {
	return Keypair{account: types.NewAccount()}
}

// FromBase58 restores a keypair from its base58 encoded secret key.
func FromBase58(secret string) (Keypair, error) {
	account, err := types.AccountFromBase58(secret)
	if err != nil {
		return Keypair{}, fmt.Errorf("decode secret key: %w", err)
	}
	return Keypair{account: account}, nil
}

// PublicKey returns the base58 public key.
func (k Keypair) PublicKey() string {
	return k.account.PublicKey.ToBase58()
}

// SecretBase58 returns the base58 encoded secret key for persistence.
func (k Keypair) SecretBase58() string {
	return base58.Encode(k.account.PrivateKey)
}

// Account exposes the underlying signer for transaction building.
func (k Keypair) Account() types.Account {
	return k.account
}
