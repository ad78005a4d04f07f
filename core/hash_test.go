package core

import "testing"

func TestHashStringRoundTrip(t *testing.T) {
	h := HashBytes([]byte("blob content"))
	s := h.String()
	got, err := HashFromString(s)
	if err != nil {
		t.Fatalf("hash_from_string(%q): %v", s, err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %x, want %x", got, h)
	}
}

func TestHashFromStringRejectsWrongLength(t *testing.T) {
	if _, err := HashFromString("short"); err == nil {
		t.Fatal("expected error for undersized hash string")
	}
}

func TestHashIsZero(t *testing.T) {
	var h Hash
	if !h.IsZero() {
		t.Fatal("zero-value Hash should report IsZero")
	}
	if hsh(1).IsZero() {
		t.Fatal("non-zero Hash should not report IsZero")
	}
}

func TestSubscriptionIDFromBytesCollapsesEmptyToDefault(t *testing.T) {
	id := SubscriptionIDFromBytes(nil)
	if !id.IsDefault() {
		t.Fatal("empty key bytes should collapse to the default subscription id")
	}
	if id != DefaultSubscriptionID {
		t.Fatal("empty key bytes should equal DefaultSubscriptionID exactly")
	}
}

func TestSubscriptionIDFromBytesIsDeterministic(t *testing.T) {
	a := SubscriptionIDFromBytes([]byte("my-key"))
	b := SubscriptionIDFromBytes([]byte("my-key"))
	if a != b {
		t.Fatal("same key bytes must produce the same subscription id")
	}
	c := SubscriptionIDFromBytes([]byte("other-key"))
	if a == c {
		t.Fatal("different key bytes must not collide")
	}
	if a.IsDefault() {
		t.Fatal("non-empty key bytes must not collapse to default")
	}
}

func TestSubscriptionIDStringDefault(t *testing.T) {
	if DefaultSubscriptionID.String() != "default" {
		t.Fatalf("default subscription id String() = %q, want %q", DefaultSubscriptionID.String(), "default")
	}
	if SubscriptionIDFromBytes([]byte("x")).String() == "default" {
		t.Fatal("non-default subscription id must not print as \"default\"")
	}
}

func TestPublicKeyIsZero(t *testing.T) {
	var p PublicKey
	if !p.IsZero() {
		t.Fatal("zero-value PublicKey should report IsZero")
	}
	if pubKey(1).IsZero() {
		t.Fatal("non-zero PublicKey should not report IsZero")
	}
}
