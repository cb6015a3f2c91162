package wallet

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	// TokenProgramID is the SPL token program.
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	// AssociatedTokenProgramID owns canonical token account addresses.
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// AssociatedTokenAddress derives the canonical token account address for an
// owner and mint pair. Seeds are (owner, token program, mint) against the
// associated token program.
func AssociatedTokenAddress(owner, mint string) (string, error) {
	ownerBytes, err := decodeKey(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	mintBytes, err := decodeKey(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	tokenProgram, err := decodeKey(TokenProgramID)
	if err != nil {
		return "", err
	}
	associatedProgram, err := decodeKey(AssociatedTokenProgramID)
	if err != nil {
		return "", err
	}

	seeds := [][]byte{ownerBytes, tokenProgram, mintBytes}
	return deriveProgramAddress(seeds, associatedProgram)
}

func decodeKey(key string) ([]byte, error) {
	raw, err := base58.Decode(key)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key %q is %d bytes, want 32", key, len(raw))
	}
	return raw, nil
}

// deriveProgramAddress runs the Solana PDA search: hash the seeds with a
// descending bump until the result is off the ed25519 curve.
func deriveProgramAddress(seeds [][]byte, programID []byte) (string, error) {
	for i := 0; i < 256; i++ {
		bump := byte(255 - i)

		buf := make([]byte, 0, 128)
		for _, seed := range seeds {
			buf = append(buf, seed...)
		}
		buf = append(buf, bump)
		buf = append(buf, programID...)
		buf = append(buf, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(buf)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), nil
		}
	}

	return "", errors.New("no off-curve address for seeds")
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
