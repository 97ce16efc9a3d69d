package security

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyPolicy controls whether forwarding headers are consulted when
// resolving the client address.
type ProxyPolicy struct {
	// TrustProxy enables X-Forwarded-For and X-Real-IP parsing.
	// Only enable it behind a reverse proxy that overwrites those headers.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies we control, counted from
	// the right of X-Forwarded-For. Zero is treated as one.
	TrustedProxyCount int
}

// ClientIP extracts the client address from r according to the policy.
func (p ProxyPolicy) ClientIP(r *http.Request) string {
	if p.TrustProxy {
		if ip := forwardedFor(r.Header.Get("X-Forwarded-For"), p.TrustedProxyCount); ip != "" {
			return ip
		}
		if ip := parseAddr(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return remoteHost(r.RemoteAddr)
}

// forwardedFor picks the entry left of our trusted proxies in
// "client, proxy1, ..., proxyN". Short lists fall back to the leftmost entry.
func forwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	hops := strings.Split(xff, ",")

	proxies := max(trustedProxyCount, 1)
	idx := max(len(hops)-proxies-1, 0)

	return parseAddr(hops[idx])
}

func parseAddr(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
