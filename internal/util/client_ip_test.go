package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.10", "fd00::/8"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name    string
		remote  string
		xff     []string
		trusted *TrustedProxies
		want    string
	}{
		{name: "untrusted peer ignores forwarded header", remote: "198.51.100.10:1234", xff: []string{"203.0.113.5"}, want: "198.51.100.10"},
		{name: "trusted peer uses forwarded client", remote: "10.0.0.20:1234", xff: []string{"203.0.113.5"}, trusted: trusted, want: "203.0.113.5"},
		{name: "rightmost untrusted hop wins", remote: "192.168.1.10:443", xff: []string{"198.51.100.1, 203.0.113.5, 10.0.0.10"}, trusted: trusted, want: "203.0.113.5"},
		{name: "repeated headers are joined", remote: "10.0.0.20:1234", xff: []string{"203.0.113.9", "10.0.0.3"}, trusted: trusted, want: "203.0.113.9"},
		{name: "garbage hops skipped", remote: "10.0.0.20:1234", xff: []string{"nope, 203.0.113.7"}, trusted: trusted, want: "203.0.113.7"},
		{name: "all hops trusted returns leftmost", remote: "10.0.0.20:1234", xff: []string{"10.0.0.5, 10.0.0.10"}, trusted: trusted, want: "10.0.0.5"},
		{name: "no forwarded header keeps peer", remote: "10.0.0.20:1234", trusted: trusted, want: "10.0.0.20"},
		{name: "ipv6 proxy", remote: "[fd00::1]:8080", xff: []string{"2001:db8::7"}, trusted: trusted, want: "2001:db8::7"},
		{name: "ipv4-mapped peer", remote: "[::ffff:10.0.0.20]:1234", xff: []string{"203.0.113.5"}, trusted: trusted, want: "203.0.113.5"},
		{name: "unparseable remote returned as is", remote: "pipe", want: "pipe"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "http://funnel.local/api/registrations", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	tp, err := NewTrustedProxies([]string{" ", ""})
	if err != nil || tp != nil {
		t.Fatalf("blank entries should yield nil, got %v, %v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1", "::1"}); err != nil {
		t.Fatalf("expected valid entries, got err: %v", err)
	}
	for _, bad := range []string{"bad-cidr", "10.0.0.0/40"} {
		if _, err := NewTrustedProxies([]string{bad}); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
}
