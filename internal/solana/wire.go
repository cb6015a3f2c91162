package solana

// JSON-RPC frames for the signatureSubscribe stream.

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsSubscribeResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      uint64   `json:"id"`
	Result  int64    `json:"result"`
	Error   *wsError `json:"error,omitempty"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64             `json:"subscription"`
	Result       wsSignatureResult `json:"result"`
}

type wsSignatureResult struct {
	Context *wsContext       `json:"context"`
	Value   wsSignatureValue `json:"value"`
}

type wsContext struct {
	Slot uint64 `json:"slot"`
}

// wsSignatureValue carries the processed-transaction outcome. Err is null on
// success and an arbitrary JSON structure on failure.
type wsSignatureValue struct {
	Err interface{} `json:"err"`
}
