// Package session persists the identity of one bot run: its run ID, target
// token and the wallets generated for it. The file carries secret keys and is
// written atomically with owner-only permissions.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JoyBoyak31/demo-volume-bot/internal/wallet"
)

// WalletRecord is one persisted keypair.
type WalletRecord struct {
	PublicKey    string `json:"public_key"`
	SecretBase58 string `json:"secret_key"`
}

// Session is the on-disk run state.
type Session struct {
	RunID     string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	TokenMint string         `json:"token_mint"`
	Wallets   []WalletRecord `json:"wallets"`
}

// New builds a fresh session for the mint with the given wallets.
func New(tokenMint string, wallets []wallet.Keypair) Session {
	records := make([]WalletRecord, len(wallets))
	for i, w := range wallets {
		records[i] = WalletRecord{
			PublicKey:    w.PublicKey(),
			SecretBase58: w.SecretBase58(),
		}
	}
	return Session{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		TokenMint: tokenMint,
		Wallets:   records,
	}
}

// Keypairs restores the signing keypairs from the persisted records.
func (s Session) Keypairs() ([]wallet.Keypair, error) {
	out := make([]wallet.Keypair, len(s.Wallets))
	for i, rec := range s.Wallets {
		kp, err := wallet.FromBase58(rec.SecretBase58)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", rec.PublicKey, err)
		}
		out[i] = kp
	}
	return out, nil
}

// Load reads a session file. A missing file is not an error: found reports
// whether one existed.
func Load(path string) (Session, bool, error) {
	if path == "" {
		return Session{}, false, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}

	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, false, fmt.Errorf("parse session %s: %w", path, err)
	}
	return s, true, nil
}

// Save writes the session atomically via a temp file rename. 0600 because the
// file holds secret keys.
func Save(path string, s Session) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
