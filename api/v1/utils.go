package v1

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"

	"sitetrack/internal/pkg/geoip"
)

// proxyHeaders are consulted after X-Forwarded-For, in order.
var proxyHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// getClientIP returns the visitor's address. Public addresses announced by a
// proxy win; otherwise the peer address is returned as-is so that private
// and loopback peers still resolve to the Local location.
func getClientIP(c *fiber.Ctx) string {
	if ip := selectPreferredIP(strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")); ip != "" {
		return ip
	}

	for _, header := range proxyHeaders {
		if value := c.Get(header); value != "" {
			if ip := selectPreferredIP([]string{value}); ip != "" {
				return ip
			}
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if ip := selectPreferredIP(parseForwardedHeader(forwarded)); ip != "" {
			return ip
		}
	}

	if remote := c.Context().RemoteAddr(); remote != nil {
		if clean, parsed := normalizeIP(remote.String()); parsed != nil {
			return clean
		}
	}

	if clean, parsed := normalizeIP(c.IP()); parsed != nil {
		return clean
	}
	return ""
}

// requestUserAgent prefers the agent forwarded by a server-side proxy.
func requestUserAgent(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-User-Agent"); forwarded != "" {
		return forwarded
	}
	return c.Get(fiber.HeaderUserAgent)
}

// selectPreferredIP returns the first public IPv4, else the first public IPv6.
func selectPreferredIP(values []string) string {
	var ipv6Fallback string

	for _, raw := range values {
		clean, parsed := normalizeIP(raw)
		if parsed == nil || geoip.IsPrivate(parsed) {
			continue
		}

		if parsed.To4() != nil {
			return clean
		}

		if ipv6Fallback == "" {
			ipv6Fallback = clean
		}
	}

	return ipv6Fallback
}

// normalizeIP strips quotes, ports, brackets and zones, and unwraps
// IPv4-mapped IPv6 addresses.
func normalizeIP(raw string) (string, net.IP) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"")
	if clean == "" {
		return "", nil
	}

	if percent := strings.Index(clean, "%"); percent != -1 {
		clean = clean[:percent]
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return unmapped(addrPort.Addr())
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if addr, err := netip.ParseAddr(trimmed); err == nil {
		return unmapped(addr)
	}

	if host, _, err := net.SplitHostPort(clean); err == nil {
		return normalizeIP(host)
	}

	return "", nil
}

func unmapped(addr netip.Addr) (string, net.IP) {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	ipStr := addr.String()
	return ipStr, net.ParseIP(ipStr)
}

// parseForwardedHeader extracts the for= candidates of an RFC 7239 header.
func parseForwardedHeader(header string) []string {
	var candidates []string

	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				candidates = append(candidates, part[len("for="):])
			}
		}
	}

	return candidates
}
