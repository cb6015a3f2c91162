// Package jupiter is a thin client for a Jupiter-style quote/swap aggregator.
// It does no retrying of its own: errors are classified immediately so the
// execution scheduler owns every retry and cooldown decision.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JoyBoyak31/demo-volume-bot/internal/domain"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://quote-api.jup.ag/v6"
	DefaultTimeout = 15 * time.Second
)

// Error codes the aggregator uses for unroutable (dust) amounts.
const (
	errCodeNoRoute = "COULD_NOT_FIND_ANY_ROUTE"
)

// Client calls the quote and swap endpoints.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the aggregator base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a new aggregator client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote fetches an ExactIn quote. Rate limiting surfaces as
// domain.ErrRateLimited, unroutable amounts as domain.ErrNoRoute.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	params.Set("swapMode", "ExactIn")

	endpoint := c.baseURL + "/quote?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch quote: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("quote %s->%s: %w", req.InputMint, req.OutputMint, err)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}
	if quote.OutAmount == "" {
		return nil, fmt.Errorf("quote %s->%s: empty outAmount", req.InputMint, req.OutputMint)
	}

	c.logger.Debug("quote fetched",
		"input_mint", req.InputMint,
		"output_mint", req.OutputMint,
		"in_amount", req.Amount,
		"out_amount", quote.OutAmount,
	)
	return &quote, nil
}

// BuildSwap asks the aggregator to build a serialized swap transaction for a
// previously fetched quote. The transaction still needs the wallet signature.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string) (*SwapResponse, error) {
	payload := swapRequest{
		UserPublicKey:           userPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
		QuoteResponse:           quote,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("build swap: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read swap response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, respBody); err != nil {
		return nil, fmt.Errorf("swap for %s: %w", userPublicKey, err)
	}

	var swap SwapResponse
	if err := json.Unmarshal(respBody, &swap); err != nil {
		return nil, fmt.Errorf("unmarshal swap response: %w", err)
	}
	if swap.SwapTransaction == "" {
		return nil, fmt.Errorf("swap for %s: empty swapTransaction", userPublicKey)
	}
	return &swap, nil
}

// classifyStatus maps an HTTP response onto the scheduler's error taxonomy.
// Anything that is neither a rate-limit signal nor a no-route rejection is
// left as a plain error, which the caller treats as transient.
func classifyStatus(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}

	if status == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	if apiErr.ErrorCode == errCodeNoRoute ||
		strings.Contains(strings.ToLower(apiErr.Error), "could not find any route") {
		return domain.ErrNoRoute
	}
	if strings.Contains(strings.ToLower(apiErr.Error), "rate limit") {
		return domain.ErrRateLimited
	}

	msg := apiErr.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return fmt.Errorf("unexpected status %d: %s", status, msg)
}
