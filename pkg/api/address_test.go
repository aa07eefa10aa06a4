package api

import "testing"

func TestAddressNormalizesIPv4MappedIPv6(t *testing.T) {
	mapped := append(append([]byte{}, v4InV6Prefix...), 192, 168, 1, 1)
	addr, err := NewAddress(mapped, 8080)
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}
	if len(addr.IP()) != 4 {
		t.Fatalf("IP length = %d, want 4 after normalisation", len(addr.IP()))
	}

	plain, err := NewAddress([]byte{192, 168, 1, 1}, 8080)
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}
	if !addr.Equal(plain) {
		t.Fatalf("mapped address %v != plain address %v", addr, plain)
	}
}

func TestAddressRejectsBadLength(t *testing.T) {
	if _, err := NewAddress([]byte{1, 2, 3}, 80); err == nil {
		t.Fatalf("expected an error for a 3-byte IP")
	}
}

func TestAddressRoundTripsThroughString(t *testing.T) {
	addr, err := NewAddress([]byte{10, 0, 0, 1}, 1234)
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}

	parsed, err := ParseAddress(addr.String())
	if err != nil {
		t.Fatalf("ParseAddress(%q) failed: %v", addr.String(), err)
	}
	if !parsed.Equal(addr) {
		t.Fatalf("ParseAddress(%q) = %v, want %v", addr.String(), parsed, addr)
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	if _, err := ParseAddress("not-an-address"); err == nil {
		t.Fatalf("expected an error for a malformed address string")
	}
}
