package jupiter

import (
	"fmt"
	"strconv"
)

// QuoteRequest describes a quote lookup against the aggregator.
type QuoteRequest struct {
	InputMint   string // mint being spent
	OutputMint  string // mint being bought
	Amount      uint64 // input amount in base units (ExactIn)
	SlippageBps int    // max slippage in basis points
}

// Quote is the aggregator's quote response. Amount fields arrive as decimal
// strings on the wire and stay that way; use the Parse helpers for math.
type Quote struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []RoutePlan `json:"routePlan"`
	ContextSlot          uint64      `json:"contextSlot"`
	TimeTaken            float64     `json:"timeTaken"`
}

// RoutePlan is one hop of the quoted route.
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo identifies the venue and legs of a route hop.
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// ParseInAmount returns the quoted input amount in base units.
func (q *Quote) ParseInAmount() (uint64, error) {
	v, err := strconv.ParseUint(q.InAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse inAmount %q: %w", q.InAmount, err)
	}
	return v, nil
}

// ParseOutAmount returns the quoted output amount in base units.
func (q *Quote) ParseOutAmount() (uint64, error) {
	v, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse outAmount %q: %w", q.OutAmount, err)
	}
	return v, nil
}

// swapRequest is the POST /swap payload.
type swapRequest struct {
	UserPublicKey             string `json:"userPublicKey"`
	WrapAndUnwrapSol          bool   `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool   `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports,omitempty"`
	QuoteResponse             *Quote `json:"quoteResponse"`
}

// SwapResponse carries the serialized transaction built for a quote.
type SwapResponse struct {
	SwapTransaction           string `json:"swapTransaction"` // base64 versioned transaction
	LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports"`
}

// apiError is the aggregator's error envelope.
type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}
