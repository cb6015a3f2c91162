package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/blocto/solana-go-sdk/types"
)

type transferCall struct {
	from     string
	to       string
	lamports uint64
}

type fakeLedger struct {
	balances  map[string]uint64
	exists    map[string]bool
	transfers []transferCall
	failFrom  map[string]error
	confirmed []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]uint64),
		exists:   make(map[string]bool),
		failFrom: make(map[string]error),
	}
}

func (l *fakeLedger) Balance(_ context.Context, wallet string) (uint64, error) {
	return l.balances[wallet], nil
}

func (l *fakeLedger) AccountExists(_ context.Context, address string) (bool, error) {
	return l.exists[address], nil
}

func (l *fakeLedger) Transfer(_ context.Context, from types.Account, to string, lamports uint64) (string, error) {
	fromKey := from.PublicKey.ToBase58()
	if err := l.failFrom[fromKey]; err != nil {
		return "", err
	}
	l.balances[fromKey] -= lamports
	l.balances[to] += lamports
	l.transfers = append(l.transfers, transferCall{from: fromKey, to: to, lamports: lamports})
	return fmt.Sprintf("sig-%d", len(l.transfers)), nil
}

func (l *fakeLedger) Confirm(_ context.Context, signature string) error {
	l.confirmed = append(l.confirmed, signature)
	return nil
}

func ataFor(t *testing.T, w Keypair, mint string) string {
	t.Helper()
	addr, err := AssociatedTokenAddress(w.PublicKey(), mint)
	if err != nil {
		t.Fatalf("derive token account: %v", err)
	}
	return addr
}

func TestFunder_DistributeTopsUpDeficit(t *testing.T) {
	funderKey := Generate()
	fresh := Generate()
	topped := Generate()
	mint := Generate().PublicKey()

	ledger := newFakeLedger()
	ledger.balances[funderKey.PublicKey()] = 100_000_000
	// topped already holds the budget and its token account exists.
	ledger.balances[topped.PublicKey()] = 10_000_000
	ledger.exists[ataFor(t, topped, mint)] = true

	f := NewFunder(FunderOptions{Ledger: ledger, RentBuffer: 2_000_000})

	funded, err := f.Distribute(context.Background(), funderKey,
		[]Keypair{fresh, topped}, mint, 10_000_000)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if funded != 1 {
		t.Fatalf("expected 1 funded wallet, got %d", funded)
	}

	if len(ledger.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(ledger.transfers))
	}
	call := ledger.transfers[0]
	if call.to != fresh.PublicKey() {
		t.Errorf("transfer went to %s, want %s", call.to, fresh.PublicKey())
	}
	// Budget plus rent buffer, since the token account does not exist yet.
	if call.lamports != 12_000_000 {
		t.Errorf("expected 12000000 lamports, got %d", call.lamports)
	}
	if len(ledger.confirmed) != 1 {
		t.Errorf("funding transfer was not confirmed")
	}
}

func TestFunder_DistributePartialDeficit(t *testing.T) {
	funderKey := Generate()
	w := Generate()
	mint := Generate().PublicKey()

	ledger := newFakeLedger()
	ledger.balances[funderKey.PublicKey()] = 100_000_000
	ledger.balances[w.PublicKey()] = 4_000_000
	ledger.exists[ataFor(t, w, mint)] = true

	f := NewFunder(FunderOptions{Ledger: ledger})

	funded, err := f.Distribute(context.Background(), funderKey, []Keypair{w}, mint, 10_000_000)
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if funded != 1 {
		t.Fatalf("expected 1 funded wallet, got %d", funded)
	}
	if got := ledger.transfers[0].lamports; got != 6_000_000 {
		t.Errorf("expected top-up of 6000000, got %d", got)
	}
}

func TestFunder_DistributeFunderExhausted(t *testing.T) {
	funderKey := Generate()
	first := Generate()
	second := Generate()
	mint := Generate().PublicKey()

	ledger := newFakeLedger()
	// Enough for one wallet, not two.
	ledger.balances[funderKey.PublicKey()] = 13_000_000
	ledger.exists[ataFor(t, first, mint)] = true
	ledger.exists[ataFor(t, second, mint)] = true

	f := NewFunder(FunderOptions{Ledger: ledger})

	funded, err := f.Distribute(context.Background(), funderKey,
		[]Keypair{first, second}, mint, 10_000_000)
	if err == nil {
		t.Fatalf("expected funder exhaustion")
	}
	if funded != 1 {
		t.Errorf("expected 1 wallet funded before exhaustion, got %d", funded)
	}
}

func TestFunder_SweepKeepsReserve(t *testing.T) {
	rich := Generate()
	poor := Generate()
	dest := Generate().PublicKey()

	ledger := newFakeLedger()
	ledger.balances[rich.PublicKey()] = 5_000_000
	ledger.balances[poor.PublicKey()] = 900_000

	f := NewFunder(FunderOptions{Ledger: ledger, FeeReserve: 1_000_000})

	swept, err := f.Sweep(context.Background(), []Keypair{rich, poor}, dest)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if swept != 4_000_000 {
		t.Errorf("expected 4000000 swept, got %d", swept)
	}
	if len(ledger.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(ledger.transfers))
	}
	if got := ledger.balances[rich.PublicKey()]; got != 1_000_000 {
		t.Errorf("reserve not kept: balance %d", got)
	}
	if got := ledger.balances[dest]; got != 4_000_000 {
		t.Errorf("destination got %d", got)
	}
}

func TestFunder_SweepContinuesOnFailure(t *testing.T) {
	broken := Generate()
	healthy := Generate()
	dest := Generate().PublicKey()

	ledger := newFakeLedger()
	ledger.balances[broken.PublicKey()] = 5_000_000
	ledger.balances[healthy.PublicKey()] = 3_000_000
	ledger.failFrom[broken.PublicKey()] = errors.New("blockhash expired")

	f := NewFunder(FunderOptions{Ledger: ledger, FeeReserve: 1_000_000})

	swept, err := f.Sweep(context.Background(), []Keypair{broken, healthy}, dest)
	if err == nil {
		t.Fatalf("expected an error for the broken wallet")
	}
	if swept != 2_000_000 {
		t.Errorf("healthy wallet should still sweep: got %d", swept)
	}
}
