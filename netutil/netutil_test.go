package netutil

import "testing"

func TestNormalizeIP(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"192.0.2.4", "192.0.2.4", true},
		{"192.0.2.4:1234", "192.0.2.4", true},
		{" 192.0.2.4 ", "192.0.2.4", true},
		{"[2001:db8::1]:443", "2001:db8::1", true},
		{"2001:db8::1", "2001:db8::1", true},
		{"fe80::1%eth0", "fe80::1", true},
		{"not-an-ip", "not-an-ip", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeIP(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NormalizeIP(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestClientAddrPrefersForwardedFor(t *testing.T) {
	got := ClientAddr("203.0.113.7:8443, 10.0.0.1", "198.51.100.2", "192.0.2.1:9999")
	if got != "203.0.113.7" {
		t.Fatalf("expected first forwarded entry, got %s", got)
	}
}

func TestClientAddrFallbackChain(t *testing.T) {
	if got := ClientAddr("", "198.51.100.2", "192.0.2.1:9999"); got != "198.51.100.2" {
		t.Fatalf("expected real-ip fallback, got %s", got)
	}
	if got := ClientAddr("", "", "192.0.2.1:9999"); got != "192.0.2.1" {
		t.Fatalf("expected remote addr fallback, got %s", got)
	}
	if got := ClientAddr("", "", ""); got != "unknown" {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestTruncateUserAgent(t *testing.T) {
	long := make([]rune, MaxUserAgentLength+40)
	for i := range long {
		long[i] = 'a'
	}
	got := TruncateUserAgent(string(long))
	if len([]rune(got)) != MaxUserAgentLength {
		t.Fatalf("expected %d runes, got %d", MaxUserAgentLength, len([]rune(got)))
	}
	if TruncateUserAgent("short") != "short" {
		t.Fatal("short agents must pass through unchanged")
	}
}
