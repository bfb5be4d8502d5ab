package utils

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

var standardWebPorts = map[string]bool{"80": true, "443": true}

// GetScheme determines the scheme (http/https) from the request
func GetScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(scheme, ",")[0]))
	}
	return "http"
}

func IsHTTPS(r *http.Request) bool {
	return GetScheme(r) == "https"
}

// IsDefaultPort returns true if the port is a standard web port (80, 443)
func IsDefaultPort(port string) bool {
	return standardWebPorts[port]
}

// ConstructURL builds a URL string and removes standard web ports if present
func ConstructURL(scheme, host, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		hostname, port = host, ""
	}
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}

	if port == "" || IsDefaultPort(port) {
		return fmt.Sprintf("%s://%s%s", scheme, hostname, path)
	}
	return fmt.Sprintf("%s://%s:%s%s", scheme, hostname, port, path)
}

// LANAddress returns the first non-loopback IPv4 address of this host, or
// "localhost" when none is found.
func LANAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}
