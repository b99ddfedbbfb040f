package server_test

import (
	"net/netip"
	"testing"
)

func mustAddrPort(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		t.Fatalf("ParseAddrPort(%q) error = %v", s, err)
	}
	return ap
}

// netAddr is a syntactically valid datagram address nobody listens on.
func netAddr(t *testing.T) netip.AddrPort {
	return mustAddrPort(t, "127.0.0.1:9")
}
