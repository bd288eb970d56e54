// Package transport delivers raw request bytes to a target exactly as given
// and returns whatever the server wrote back. Nothing is normalized on the
// way out, which is the whole point for malformed-header probes.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/config"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/httpmsg"
	"golang.org/x/net/proxy"
)

var (
	// ErrNoResponse is returned when the read deadline passes before the
	// server sent a single byte.
	ErrNoResponse = errors.New("no response before read deadline")

	ErrBlockedAddress = errors.New("target address is blocked")
)

// RawTransport opens one connection per request. Connections are never
// reused because a desynced back-end would poison the next probe.
type RawTransport struct {
	cfg      config.TransportConfig
	dialer   proxy.ContextDialer
	resolver *net.Resolver
	parser   httpmsg.Parser
}

var _ core.Transport = (*RawTransport)(nil)

func NewRawTransport(cfg config.TransportConfig) (*RawTransport, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = cfg.Timeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 1 << 20
	}

	base := &net.Dialer{Timeout: cfg.Timeout}
	t := &RawTransport{
		cfg:      cfg,
		dialer:   base,
		resolver: net.DefaultResolver,
		parser:   httpmsg.New(),
	}

	if cfg.SOCKSProxy != "" {
		d, err := socksDialer(cfg.SOCKSProxy, base)
		if err != nil {
			return nil, err
		}
		t.dialer = d
	}

	return t, nil
}

func socksDialer(raw string, base *net.Dialer) (proxy.ContextDialer, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// bare host:port
		u = &url.URL{Scheme: "socks5", Host: raw}
	}

	d, err := proxy.FromURL(u, base)
	if err != nil {
		return nil, fmt.Errorf("invalid SOCKS proxy %q: %w", raw, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS proxy dialer does not support contexts")
	}
	return cd, nil
}

// Send writes raw to the target and reads the response until the message is
// complete, the server closes, the read deadline passes or the size cap is
// hit. A partial response read before the deadline is returned without error.
func (t *RawTransport) Send(ctx context.Context, target core.Target, raw []byte) ([]byte, error) {
	if t.cfg.BlockPrivate {
		if err := checkAddress(ctx, t.resolver, target.Host); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBlockedAddress, err)
		}
	}

	addr := Addr(target)
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	// Cancellation unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if target.TLS {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         target.Host,
			InsecureSkipVerify: t.cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		})
		_ = tlsConn.SetDeadline(time.Now().Add(t.cfg.Timeout))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, fmt.Errorf("TLS handshake with %s failed: %w", addr, err)
		}
		conn = tlsConn
	}

	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.Timeout))
	if _, err := conn.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	resp, err := t.readResponse(conn, isHeadRequest(raw))
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *RawTransport) readResponse(conn net.Conn, headRequest bool) ([]byte, error) {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)

	for len(buf) < t.cfg.MaxResponseBytes {
		n, err := conn.Read(tmp)
		if n > 0 {
			if over := len(buf) + n - t.cfg.MaxResponseBytes; over > 0 {
				n -= over
			}
			buf = append(buf, tmp[:n]...)
			if responseComplete(t.parser, buf, headRequest) {
				return buf, nil
			}
		}
		if err == nil {
			continue
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if len(buf) == 0 {
				return nil, ErrNoResponse
			}
			return buf, nil
		}
		if len(buf) > 0 {
			// EOF or reset after data: keep what arrived
			return buf, nil
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return buf, nil
}
