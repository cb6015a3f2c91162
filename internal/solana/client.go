// Package solana wraps the ledger-side operations the bot needs: balance and
// inventory reads, SOL transfers, submitting aggregator-built transactions
// and waiting for confirmations. Confirmation prefers the WebSocket
// subscription stream and falls back to status polling when the stream is
// unavailable.
package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/sysprog"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"

	"github.com/JoyBoyak31/demo-volume-bot/internal/observability"
)

const (
	// DefaultPollInterval is the signature status polling cadence.
	DefaultPollInterval = 2 * time.Second
	// DefaultConfirmTimeout bounds one confirmation wait across both the
	// stream and polling paths.
	DefaultConfirmTimeout = 90 * time.Second
)

// Client talks to a Solana RPC node.
type Client struct {
	rpc            *client.Client
	confirmer      *Confirmer
	logger         *slog.Logger
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithConfirmer attaches a WebSocket confirmer used before polling.
func WithConfirmer(c *Confirmer) ClientOption {
	return func(cl *Client) {
		cl.confirmer = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// WithPollInterval overrides the status polling cadence.
func WithPollInterval(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.pollInterval = d
	}
}

// WithConfirmTimeout overrides the confirmation deadline.
func WithConfirmTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		cl.confirmTimeout = d
	}
}

// NewClient creates a Client against the given RPC endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		rpc:            client.NewClient(endpoint),
		logger:         slog.Default(),
		pollInterval:   DefaultPollInterval,
		confirmTimeout: DefaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "solana")
	return c
}

// Balance returns the wallet's SOL balance in lamports.
func (c *Client) Balance(ctx context.Context, wallet string) (uint64, error) {
	balance, err := c.rpc.GetBalance(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// TokenBalance returns the wallet's total holding of mint, in base units,
// summed over all its token accounts.
func (c *Client) TokenBalance(ctx context.Context, wallet, mint string) (uint64, error) {
	accounts, err := c.rpc.GetTokenAccountsByOwnerByMint(ctx, wallet, mint)
	if err != nil {
		return 0, fmt.Errorf("get token accounts: %w", err)
	}
	var total uint64
	for _, a := range accounts {
		total += a.Amount
	}
	return total, nil
}

// AccountExists reports whether the address is funded on chain. A missing
// account comes back zero-valued from the RPC.
func (c *Client) AccountExists(ctx context.Context, address string) (bool, error) {
	info, err := c.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		return false, fmt.Errorf("get account info: %w", err)
	}
	return info.Lamports > 0 || len(info.Data) > 0, nil
}

// LatestBlockhash fetches a recent blockhash for building transactions.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	latest, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}
	return latest.Blockhash, nil
}

// Execute submits an aggregator-built transaction. The base64 payload comes
// back from the swap endpoint unsigned for our key, so it is deserialized
// and re-signed by the owning wallet before broadcast.
func (c *Client) Execute(ctx context.Context, txBase64 string, signer types.Account) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	tx, err := types.TransactionDeserialize(raw)
	if err != nil {
		return "", fmt.Errorf("deserialize transaction: %w", err)
	}
	signed, err := types.NewTransaction(types.NewTransactionParam{
		Message: tx.Message,
		Signers: []types.Account{signer},
	})
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	sig, err := c.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// Transfer moves lamports between wallets. Used for funding and sweeping.
func (c *Client) Transfer(ctx context.Context, from types.Account, to string, lamports uint64) (string, error) {
	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        from.PublicKey,
			RecentBlockhash: blockhash,
			Instructions: []types.Instruction{
				sysprog.Transfer(sysprog.TransferParam{
					From:   from.PublicKey,
					To:     common.PublicKeyFromString(to),
					Amount: lamports,
				}),
			},
		}),
		Signers: []types.Account{from},
	})
	if err != nil {
		return "", fmt.Errorf("build transfer: %w", err)
	}
	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}
	return sig, nil
}

// Confirm waits until the signature reaches confirmed commitment or the
// deadline passes. With a confirmer attached the WebSocket stream is tried
// first; a lost stream falls back to polling rather than failing the trade.
func (c *Client) Confirm(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()
	start := time.Now()

	if c.confirmer != nil {
		err := c.confirmer.Await(ctx, signature)
		switch {
		case err == nil:
			observability.RecordConfirmLatency("ws", time.Since(start).Seconds())
			return nil
		case errors.Is(err, errStreamLost):
			c.logger.Warn("confirmation stream lost, polling instead", "signature", signature)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return fmt.Errorf("confirmation timed out: %w", err)
		default:
			// The stream reported a definitive on-chain failure.
			return err
		}
	}

	err := c.confirmByPolling(ctx, signature)
	if err == nil {
		observability.RecordConfirmLatency("poll", time.Since(start).Seconds())
	}
	return err
}

func (c *Client) confirmByPolling(ctx context.Context, signature string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.rpc.GetSignatureStatus(ctx, signature)
		if err != nil {
			c.logger.Debug("signature status poll failed", "signature", signature, "error", err)
		} else if status != nil {
			if status.Err != nil {
				return fmt.Errorf("transaction failed on chain: %v", status.Err)
			}
			if status.ConfirmationStatus != nil &&
				(*status.ConfirmationStatus == rpc.CommitmentConfirmed ||
					*status.ConfirmationStatus == rpc.CommitmentFinalized) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation timed out: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
