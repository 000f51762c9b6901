package audit

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/platinummonkey/studiodesk/pkg/contextkeys"
)

// TrustedProxies are the networks whose X-Forwarded-For and X-Real-IP
// headers are believed
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDR prefixes ("10.0.0.0/8") and single
// addresses ("10.0.0.1"). Empty entries are ignored.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	var trusted TrustedProxies
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
			}
			trusted = append(trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		addr = addr.Unmap()
		trusted = append(trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return trusted, nil
}

func (t TrustedProxies) contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// MetadataMiddleware captures the connection's address and the user agent
// so that Pipeline.Log can attribute events without callers threading them
// through. Forwarding headers are ignored.
func MetadataMiddleware(next http.Handler) http.Handler {
	return NewMetadataMiddleware(nil)(next)
}

// NewMetadataMiddleware is MetadataMiddleware for a service behind proxies.
// X-Forwarded-For and X-Real-IP are read only when the direct peer is in
// trusted.
func NewMetadataMiddleware(trusted TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := RequestMetadata{
				IPAddress: clientIP(r, trusted),
				UserAgent: r.UserAgent(),
			}
			ctx := contextkeys.WithRequestMetadata(r.Context(), meta)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP returns the connection's remote address unless it is a trusted
// proxy. Behind a trusted proxy the X-Forwarded-For chain is walked from the
// right and the first untrusted hop wins; X-Real-IP is the fallback. Only
// values that parse as IP addresses are accepted.
func clientIP(r *http.Request, trusted TrustedProxies) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remote = host
	}

	peer, err := netip.ParseAddr(remote)
	if err != nil || !trusted.contains(peer) {
		return remote
	}

	if hops := forwardedHops(r); len(hops) > 0 {
		var last netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(hops[i])
			if err != nil {
				break
			}
			last = addr.Unmap()
			if !trusted.contains(last) {
				return last.String()
			}
		}
		if last.IsValid() {
			return last.String()
		}
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	return remote
}

func forwardedHops(r *http.Request) []string {
	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(header, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}
