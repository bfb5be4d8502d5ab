package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
)

// Only a reverse proxy on the same host is believed unless TRUSTED_PROXIES
// names others.
var defaultTrustedCIDRs = []string{"127.0.0.0/8", "::1/128"}

var (
	proxyMu        sync.RWMutex
	trustedProxies = mustParseCIDRs(defaultTrustedCIDRs)
)

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets, err := parseCIDRs(cidrs)
	if err != nil {
		panic(err)
	}
	return nets
}

func parseCIDRs(cidrs []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if ip := net.ParseIP(cidr); ip != nil {
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		nets = append(nets, network)
	}
	return nets, nil
}

// SetTrustedProxies replaces the networks whose forwarding headers are
// believed. Entries may be CIDRs or single addresses. An empty list restores
// the loopback-only default.
func SetTrustedProxies(cidrs []string) error {
	nets, err := parseCIDRs(cidrs)
	if err != nil {
		return err
	}
	if len(nets) == 0 {
		nets = mustParseCIDRs(defaultTrustedCIDRs)
	}
	proxyMu.Lock()
	trustedProxies = nets
	proxyMu.Unlock()
	return nil
}

func isTrustedProxy(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	proxyMu.RLock()
	defer proxyMu.RUnlock()
	for _, network := range trustedProxies {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// GetClientIP extracts client IP, only trusting proxy headers from trusted sources.
func GetClientIP(r *http.Request) string {
	directIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if directIP == "" {
		directIP = r.RemoteAddr
	}

	if isTrustedProxy(directIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(clientIP) != nil {
				return clientIP
			}
		}
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			xri = strings.TrimSpace(xri)
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	return directIP
}
