// Package netutil normalizes client network addresses for rate limiting
// and audit logging.
package netutil

import (
	"net/netip"
	"strings"
	"unicode/utf8"
)

// MaxUserAgentLength bounds stored user agent strings.
const MaxUserAgentLength = 512

// NormalizeIP takes either a bare IP string or an address that may include a
// port (e.g. "192.0.2.4:1234" or "[2001:db8::1]:443") and returns the
// canonical IP portion without any zone identifier. The second return value
// reports whether the input parsed as an IP address.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		addr := addrPort.Addr().WithZone("")
		if addr.IsValid() {
			return addr.String(), true
		}
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		addr = addr.WithZone("")
		if addr.IsValid() {
			return addr.String(), true
		}
	}
	// Bracketed IPv6 with a non-numeric port (e.g. "[::1]:port").
	if strings.HasPrefix(raw, "[") && strings.Contains(raw, "]") {
		host := raw[1:strings.LastIndex(raw, "]")]
		if addr, err := netip.ParseAddr(host); err == nil {
			addr = addr.WithZone("")
			if addr.IsValid() {
				return addr.String(), true
			}
		}
	}
	if idx := strings.LastIndex(raw, ":"); idx > 0 {
		host := raw[:idx]
		if addr, err := netip.ParseAddr(host); err == nil {
			addr = addr.WithZone("")
			if addr.IsValid() {
				return addr.String(), true
			}
		}
	}
	return raw, false
}

// ClientAddr resolves the client address used as the rate-limit identity for
// unauthenticated requests. The first entry of a forwarded-for chain wins,
// then the real-ip header, then the direct remote address. Ports and zones
// are stripped. Returns "unknown" when nothing parses.
func ClientAddr(forwardedFor, realIP, remoteAddr string) string {
	if forwardedFor != "" {
		first := forwardedFor
		if idx := strings.Index(first, ","); idx >= 0 {
			first = first[:idx]
		}
		if ip, ok := NormalizeIP(first); ok {
			return ip
		}
	}
	if realIP != "" {
		if ip, ok := NormalizeIP(realIP); ok {
			return ip
		}
	}
	if remoteAddr != "" {
		if ip, ok := NormalizeIP(remoteAddr); ok {
			return ip
		}
	}
	return "unknown"
}

// TruncateUserAgent trims overly long user agents to MaxUserAgentLength runes.
func TruncateUserAgent(ua string) string {
	if ua == "" {
		return ""
	}
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	var b strings.Builder
	b.Grow(len(ua))
	count := 0
	for _, r := range ua {
		b.WriteRune(r)
		count++
		if count >= MaxUserAgentLength {
			break
		}
	}
	return b.String()
}
