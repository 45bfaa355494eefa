package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, AddressLength)
	addr := NewAddress(AccountPrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("decoded address mismatch: %s vs %s", decoded, addr)
	}
	if decoded.Prefix() != AccountPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestAddressZero(t *testing.T) {
	if !(Address{}).IsZero() {
		t.Fatalf("expected empty address to be zero")
	}
	if !NewAddress(AccountPrefix, make([]byte, AddressLength)).IsZero() {
		t.Fatalf("expected all-zero address to be zero")
	}
	if NewAddress(AccountPrefix, bytes.Repeat([]byte{1}, AddressLength)).IsZero() {
		t.Fatalf("expected populated address to be non-zero")
	}
	if (Address{}).String() != "" {
		t.Fatalf("expected zero address to render empty")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatalf("expected decode failure")
	}
}
