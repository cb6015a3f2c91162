package wallet

import "testing"

func TestGenerate_UniqueKeys(t *testing.T) {
	a := Generate()
	b := Generate()
	if a.PublicKey() == b.PublicKey() {
		t.Fatalf("two generated wallets share a public key")
	}
}

func TestKeypair_SecretRoundTrip(t *testing.T) {
	original := Generate()

	restored, err := FromBase58(original.SecretBase58())
	if err != nil {
		t.Fatalf("FromBase58 failed: %v", err)
	}
	if restored.PublicKey() != original.PublicKey() {
		t.Errorf("restored key %s does not match original %s",
			restored.PublicKey(), original.PublicKey())
	}
}

func TestFromBase58_Invalid(t *testing.T) {
	if _, err := FromBase58("not a key"); err == nil {
		t.Fatalf("expected error for invalid secret")
	}
	if _, err := FromBase58(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
