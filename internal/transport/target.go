package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
)

// ParseTarget accepts "host", "host:port" or an http(s) URL and returns the
// endpoint plus the request path ("/" when none is given). Without a scheme
// the tls flag selects the default port.
func ParseTarget(raw string, tls bool) (core.Target, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.Target{}, "", fmt.Errorf("target cannot be empty")
	}

	path := "/"
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return core.Target{}, "", fmt.Errorf("invalid target URL: %w", err)
		}
		switch u.Scheme {
		case "http":
			tls = false
		case "https":
			tls = true
		default:
			return core.Target{}, "", fmt.Errorf("target URL must use HTTP or HTTPS scheme")
		}
		if u.RequestURI() != "" {
			path = u.RequestURI()
		}
		raw = u.Host
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		// no port given
		host = strings.Trim(raw, "[]")
		portStr = ""
	}
	if host == "" {
		return core.Target{}, "", fmt.Errorf("target %q has no host", raw)
	}

	port := 80
	if tls {
		port = 443
	}
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return core.Target{}, "", fmt.Errorf("invalid port %q", portStr)
		}
	}

	return core.Target{Host: host, Port: port, TLS: tls}, path, nil
}

// Addr returns host:port for dialing.
func Addr(t core.Target) string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// HostHeader is the Host header value for t, omitting the scheme's default
// port.
func HostHeader(t core.Target) string {
	if (t.TLS && t.Port == 443) || (!t.TLS && t.Port == 80) {
		if strings.Contains(t.Host, ":") {
			return "[" + t.Host + "]"
		}
		return t.Host
	}
	return Addr(t)
}
