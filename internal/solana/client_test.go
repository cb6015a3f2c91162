package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/sysprog"
	"github.com/blocto/solana-go-sdk/types"
)

// zeroBlockhash is the base58 form of 32 zero bytes.
const zeroBlockhash = "11111111111111111111111111111111"

const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

func writeResult(t *testing.T, w http.ResponseWriter, id uint64, result interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
	if err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// tokenAccountData builds the 165 byte SPL token account layout: mint,
// owner, little-endian amount and the initialized state flag.
func tokenAccountData(mint, owner string, amount uint64) string {
	data := make([]byte, 165)
	mintKey := common.PublicKeyFromString(mint)
	ownerKey := common.PublicKeyFromString(owner)
	copy(data[0:32], mintKey.Bytes())
	copy(data[32:64], ownerKey.Bytes())
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1
	return base64.StdEncoding.EncodeToString(data)
}

func TestClient_Balance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != "getBalance" {
			t.Errorf("expected getBalance, got %s", req.Method)
		}
		writeResult(t, w, req.ID, map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value":   12345,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	balance, err := c.Balance(context.Background(), types.NewAccount().PublicKey.ToBase58())
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 12345 {
		t.Errorf("expected balance 12345, got %d", balance)
	}
}

func TestClient_TokenBalance_SumsAccounts(t *testing.T) {
	owner := types.NewAccount().PublicKey.ToBase58()
	mint := types.NewAccount().PublicKey.ToBase58()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != "getTokenAccountsByOwner" {
			t.Errorf("expected getTokenAccountsByOwner, got %s", req.Method)
		}
		account := func(amount uint64) map[string]interface{} {
			return map[string]interface{}{
				"pubkey": types.NewAccount().PublicKey.ToBase58(),
				"account": map[string]interface{}{
					"lamports":   2039280,
					"owner":      tokenProgramID,
					"executable": false,
					"rentEpoch":  0,
					"data":       []interface{}{tokenAccountData(mint, owner, amount), "base64"},
				},
			}
		}
		writeResult(t, w, req.ID, map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value":   []interface{}{account(600), account(400)},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	total, err := c.TokenBalance(context.Background(), owner, mint)
	if err != nil {
		t.Fatalf("TokenBalance failed: %v", err)
	}
	if total != 1000 {
		t.Errorf("expected total 1000, got %d", total)
	}
}

func TestClient_TokenBalance_NoAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		writeResult(t, w, req.ID, map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value":   []interface{}{},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	total, err := c.TokenBalance(context.Background(),
		types.NewAccount().PublicKey.ToBase58(),
		types.NewAccount().PublicKey.ToBase58())
	if err != nil {
		t.Fatalf("TokenBalance failed: %v", err)
	}
	if total != 0 {
		t.Errorf("expected zero balance, got %d", total)
	}
}

func TestClient_AccountExists(t *testing.T) {
	funded := types.NewAccount().PublicKey.ToBase58()
	missing := types.NewAccount().PublicKey.ToBase58()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != "getAccountInfo" {
			t.Errorf("expected getAccountInfo, got %s", req.Method)
		}
		var value interface{}
		if strings.Contains(string(req.Params), funded) {
			value = map[string]interface{}{
				"lamports":   1_000_000,
				"owner":      zeroBlockhash,
				"executable": false,
				"rentEpoch":  0,
				"data":       []interface{}{"", "base64"},
			}
		}
		writeResult(t, w, req.ID, map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value":   value,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)

	exists, err := c.AccountExists(context.Background(), funded)
	if err != nil {
		t.Fatalf("AccountExists failed: %v", err)
	}
	if !exists {
		t.Errorf("expected funded account to exist")
	}

	exists, err = c.AccountExists(context.Background(), missing)
	if err != nil {
		t.Fatalf("AccountExists failed: %v", err)
	}
	if exists {
		t.Errorf("expected missing account to not exist")
	}
}

func TestClient_Execute_ResignsAndSends(t *testing.T) {
	const wantSig = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

	var sawSend atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != "sendTransaction" {
			t.Errorf("expected sendTransaction, got %s", req.Method)
		}
		sawSend.Store(true)
		writeResult(t, w, req.ID, wantSig)
	}))
	defer server.Close()

	// Build the payload the way an aggregator hands it back: a serialized
	// transaction the wallet still has to sign.
	payer := types.NewAccount()
	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        payer.PublicKey,
			RecentBlockhash: zeroBlockhash,
			Instructions: []types.Instruction{
				sysprog.Transfer(sysprog.TransferParam{
					From:   payer.PublicKey,
					To:     types.NewAccount().PublicKey,
					Amount: 1,
				}),
			},
		}),
		Signers: []types.Account{payer},
	})
	if err != nil {
		t.Fatalf("build transaction: %v", err)
	}
	raw, err := tx.Serialize()
	if err != nil {
		t.Fatalf("serialize transaction: %v", err)
	}

	c := NewClient(server.URL)
	sig, err := c.Execute(context.Background(), base64.StdEncoding.EncodeToString(raw), payer)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sig != wantSig {
		t.Errorf("expected signature %s, got %s", wantSig, sig)
	}
	if !sawSend.Load() {
		t.Errorf("transaction never reached the RPC")
	}
}

func TestClient_Execute_RejectsBadPayload(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	if _, err := c.Execute(context.Background(), "not base64!!!", types.NewAccount()); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
}

func TestClient_Transfer(t *testing.T) {
	const wantSig = "3AsdoALgZFuq2oUVWrDYhg2pNeaLJKPLf8hU2mQ6U8qJxeJ6hsrPVpMn9ma39DtfYCrDQSvngWRP8NnTpEhezJpE"

	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		methods = append(methods, req.Method)
		switch req.Method {
		case "getLatestBlockhash":
			writeResult(t, w, req.ID, map[string]interface{}{
				"context": map[string]interface{}{"slot": 100},
				"value": map[string]interface{}{
					"blockhash":            zeroBlockhash,
					"lastValidBlockHeight": 1000,
				},
			})
		case "sendTransaction":
			writeResult(t, w, req.ID, wantSig)
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	sig, err := c.Transfer(context.Background(), types.NewAccount(),
		types.NewAccount().PublicKey.ToBase58(), 500_000)
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if sig != wantSig {
		t.Errorf("expected signature %s, got %s", wantSig, sig)
	}
	if len(methods) != 2 || methods[0] != "getLatestBlockhash" || methods[1] != "sendTransaction" {
		t.Errorf("unexpected call sequence: %v", methods)
	}
}

func TestClient_Confirm_PollsUntilFinalized(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != "getSignatureStatuses" {
			t.Errorf("expected getSignatureStatuses, got %s", req.Method)
		}
		// Pending on the first poll, finalized on the second.
		var status interface{}
		if polls.Add(1) > 1 {
			status = map[string]interface{}{
				"slot":               100,
				"confirmations":      nil,
				"err":                nil,
				"confirmationStatus": "finalized",
			}
		}
		writeResult(t, w, req.ID, map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value":   []interface{}{status},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL,
		WithPollInterval(20*time.Millisecond),
		WithConfirmTimeout(2*time.Second))

	if err := c.Confirm(context.Background(), "somesignature"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if got := polls.Load(); got < 2 {
		t.Errorf("expected at least 2 polls, got %d", got)
	}
}

func TestClient_Confirm_OnChainFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		writeResult(t, w, req.ID, map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value": []interface{}{
				map[string]interface{}{
					"slot":               100,
					"confirmations":      3,
					"err":                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
					"confirmationStatus": "confirmed",
				},
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL,
		WithPollInterval(20*time.Millisecond),
		WithConfirmTimeout(2*time.Second))

	err := c.Confirm(context.Background(), "somesignature")
	if err == nil {
		t.Fatalf("expected on-chain failure")
	}
	if !strings.Contains(err.Error(), "failed on chain") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClient_Confirm_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		// Never settles.
		writeResult(t, w, req.ID, map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value":   []interface{}{nil},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL,
		WithPollInterval(10*time.Millisecond),
		WithConfirmTimeout(100*time.Millisecond))

	err := c.Confirm(context.Background(), "somesignature")
	if err == nil {
		t.Fatalf("expected timeout")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("unexpected error: %v", err)
	}
}
